package process

// Config declares an allow-listed command in the declaration file.
type Config struct {
	Name        string            `yaml:"name" json:"name"`
	Command     string            `yaml:"command" json:"command"`
	Args        []string          `yaml:"args" json:"args"`
	Environment map[string]string `yaml:"env" json:"env"`
	Description string            `yaml:"description" json:"description"`
}

// WithRegistry populates the allow-list from declared processes.
func WithRegistry(configs []Config) RunnerOption {
	return func(r *Runner) {
		for _, c := range configs {
			if c.Name == "" {
				continue
			}
			r.registry[c.Name] = RegisteredProcess{
				Command: c.Command,
				Args:    c.Args,
				Env:     c.Environment,
			}
		}
	}
}
