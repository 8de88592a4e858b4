package block

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// definitionsFile формат YAML-файла с дополнительными типами блоков:
//
//	blocks:
//	  - id: 400
//	    name: Crystal
//	    emission: 9
//	    transparent_solid: true
type definitionsFile struct {
	Blocks []struct {
		ID         BlockID `yaml:"id"`
		Properties `yaml:",inline"`
	} `yaml:"blocks"`
}

// LoadYAML читает описания блоков из файла и регистрирует их.
// Возвращает количество зарегистрированных блоков.
func LoadYAML(r *Registry, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}

	var defs definitionsFile
	if err := yaml.Unmarshal(data, &defs); err != nil {
		return 0, fmt.Errorf("ошибка разбора %s: %w", path, err)
	}

	for i, def := range defs.Blocks {
		if def.Name == "" {
			return i, fmt.Errorf("%s: у блока %d не задано имя", path, def.ID)
		}
		if err := r.Register(def.ID, def.Properties); err != nil {
			return i, fmt.Errorf("%s: %w", path, err)
		}
	}
	return len(defs.Blocks), nil
}
