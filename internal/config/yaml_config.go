package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Marshal renders settings as YAML, in the same layout config.yaml uses.
func (s Settings) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(s); err != nil {
		return nil, fmt.Errorf("failed to encode settings: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// SetYamlConfig writes key=value into the project's config.yaml, creating
// .tenet/config.yaml in the working directory when none exists. Dotted keys
// become nested mappings. Comments and unrelated keys are preserved.
func SetYamlConfig(key, value string) (string, error) {
	path, err := FindConfigYAMLPath()
	if err != nil {
		cwd, werr := os.Getwd()
		if werr != nil {
			return "", fmt.Errorf("failed to get working directory: %w", werr)
		}
		path = filepath.Join(cwd, DirName, FileName)
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return "", fmt.Errorf("failed to create %s: %w", DirName, err)
		}
	}

	content, err := os.ReadFile(path) // #nosec G304 - path from FindConfigYAMLPath
	if err != nil && !os.IsNotExist(err) {
		return "", fmt.Errorf("failed to read config.yaml: %w", err)
	}

	updated, err := setYamlKey(content, key, value)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, updated, 0o600); err != nil {
		return "", fmt.Errorf("failed to write config.yaml: %w", err)
	}
	return path, nil
}

func setYamlKey(content []byte, key, value string) ([]byte, error) {
	if key == "" {
		return nil, fmt.Errorf("empty key")
	}

	var doc yaml.Node
	if len(bytes.TrimSpace(content)) > 0 {
		if err := yaml.Unmarshal(content, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse config.yaml: %w", err)
		}
	}
	if doc.Kind == 0 {
		doc = yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{{Kind: yaml.MappingNode}}}
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("config.yaml: top level is not a mapping")
	}

	parts := strings.Split(key, ".")
	node := root
	for i, part := range parts {
		last := i == len(parts)-1
		child := lookup(node, part)
		if child == nil {
			child = &yaml.Node{Kind: yaml.MappingNode}
			if last {
				child = &yaml.Node{Kind: yaml.ScalarNode}
			}
			node.Content = append(node.Content,
				&yaml.Node{Kind: yaml.ScalarNode, Value: part},
				child,
			)
		}
		if last {
			child.Kind = yaml.ScalarNode
			child.Tag = ""
			child.Content = nil
			child.Value = value
			break
		}
		if child.Kind != yaml.MappingNode {
			return nil, fmt.Errorf("config.yaml: %s is not a mapping", strings.Join(parts[:i+1], "."))
		}
		node = child
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return nil, fmt.Errorf("failed to encode config.yaml: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func lookup(mapping *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == key {
			return mapping.Content[i+1]
		}
	}
	return nil
}
