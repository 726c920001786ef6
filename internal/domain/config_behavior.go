package domain

import "fmt"

// GetDefaultModel retrieves the default model definition from configuration
// Returns an error if the default model is not found
func (c *Config) GetDefaultModel() (ModelDefinition, error) {
	if c.Engine.DefaultModel == "" {
		if len(c.Models) > 0 {
			return c.Models[0], nil
		}
		return ModelDefinition{}, fmt.Errorf("no default model configured")
	}

	model, ok := c.FindModelByName(c.Engine.DefaultModel)
	if !ok {
		return ModelDefinition{}, fmt.Errorf("default model %s: %w", c.Engine.DefaultModel, ErrModelNotFound)
	}
	return model, nil
}

// FindModelByName searches for a model by its name
// Returns the model definition and true if found, empty model and false otherwise
func (c *Config) FindModelByName(name string) (ModelDefinition, bool) {
	for _, model := range c.Models {
		if model.Name == name {
			return model, true
		}
	}
	return ModelDefinition{}, false
}

// SelectModel resolves an explicit model name, falling back to the default.
func (c *Config) SelectModel(name string) (ModelDefinition, error) {
	if name == "" {
		return c.GetDefaultModel()
	}
	model, ok := c.FindModelByName(name)
	if !ok {
		return ModelDefinition{}, fmt.Errorf("model %s: %w", name, ErrModelNotFound)
	}
	return model, nil
}
