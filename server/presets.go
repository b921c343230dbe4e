package server

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

type presetFile struct {
	Attacks []struct {
		ID    string `yaml:"id"`
		Name  string `yaml:"name"`
		Cells []Cell `yaml:"cells"`
	} `yaml:"attacks"`
}

// LoadPresets 从 YAML 读取预置攻击图案，作为每个房间已保存列表的初始内容
func LoadPresets(path string) ([]SavedAttack, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read presets %s: %w", path, err)
	}
	return ParsePresets(data)
}

// ParsePresets 解析 YAML；phase 不能为负、每个图案至少一个格子
func ParsePresets(data []byte) ([]SavedAttack, error) {
	var pf presetFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("parse presets: %w", err)
	}
	out := make([]SavedAttack, 0, len(pf.Attacks))
	for i, a := range pf.Attacks {
		if len(a.Cells) == 0 {
			return nil, fmt.Errorf("preset %d (%s): %w", i, a.Name, ErrNoCells)
		}
		for _, c := range a.Cells {
			if c.Phase < 0 {
				return nil, fmt.Errorf("preset %d (%s): negative phase %d", i, a.Name, c.Phase)
			}
		}
		id := a.ID
		if id == "" {
			id = uuid.NewSHA1(uuid.NameSpaceOID, []byte(a.Name)).String()
		}
		out = append(out, SavedAttack{ID: id, Name: a.Name, Cells: a.Cells, CreatedBy: "preset"})
	}
	return out, nil
}
