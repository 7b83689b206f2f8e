package pubsub_test

import (
	"errors"

	"github.com/aretw0/journey/pkg/domain"
	"github.com/stretchr/testify/mock"
)

// mockRoot records every failure delivered to the owner tree.
type mockRoot struct {
	mock.Mock
}

func (m *mockRoot) HandleException(info domain.ExcInfo) {
	m.Called(info)
}

// widget is a minimal owner object.
type widget struct {
	name string
	root domain.ExceptionHandler
}

func (w *widget) Root() domain.ExceptionHandler {
	return w.root
}

func newWidget(name string) *widget {
	root := &mockRoot{}
	root.On("HandleException", mock.Anything).Maybe()
	return &widget{name: name, root: root}
}

// mockExcFor matches the ExcInfo produced for a failure of activity with err.
func mockExcFor(activity string, err error) any {
	return mock.MatchedBy(func(info domain.ExcInfo) bool {
		return info.Activity == activity && errors.Is(info.Err, err)
	})
}
