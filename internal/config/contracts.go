// Deployment manifest: contract addresses of a running protocol instance
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Deployment is written by the server after bootstrap and read by the CLI tools.
type Deployment struct {
	Version   string            `yaml:"version" json:"version"`
	Updated   string            `yaml:"updated" json:"updated"`
	ChainID   int64             `yaml:"chain_id" json:"chain_id"`
	Contracts map[string]string `yaml:"contracts" json:"contracts"` // name -> address
	Tokens    map[string]string `yaml:"tokens" json:"tokens"`       // symbol -> address
}

// NewDeployment creates an empty Deployment for chainID
func NewDeployment(chainID int64) *Deployment {
	return &Deployment{
		Version:   "1",
		Updated:   time.Now().UTC().Format(time.RFC3339),
		ChainID:   chainID,
		Contracts: make(map[string]string),
		Tokens:    make(map[string]string),
	}
}

// ContractAddress looks up a contract by name.
func (d *Deployment) ContractAddress(name string) (string, error) {
	addr, ok := d.Contracts[name]
	if !ok {
		return "", fmt.Errorf("contract %s not in deployment", name)
	}
	return addr, nil
}

var deploymentMu sync.Mutex

// WriteDeployment stores d as yaml at path, creating parent directories.
func WriteDeployment(path string, d *Deployment) error {
	deploymentMu.Lock()
	defer deploymentMu.Unlock()

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create deployment directory: %w", err)
		}
	}
	data, err := yaml.Marshal(d)
	if err != nil {
		return fmt.Errorf("encode deployment: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write deployment: %w", err)
	}
	fmt.Printf("📝 [Config] Deployment manifest written: %s (%d contracts, %d tokens)\n", path, len(d.Contracts), len(d.Tokens))
	return nil
}

// LoadDeployment reads a manifest written by WriteDeployment.
func LoadDeployment(path string) (*Deployment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("Failed to read deployment file: %w", err)
	}
	var d Deployment
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("Failed to parse deployment file: %w", err)
	}
	if d.Contracts == nil {
		d.Contracts = make(map[string]string)
	}
	if d.Tokens == nil {
		d.Tokens = make(map[string]string)
	}
	return &d, nil
}

// DeploymentPath is where the server writes the manifest for chainID.
func DeploymentPath(chainID int64) string {
	return filepath.Join("deployments", fmt.Sprintf("%d.yaml", chainID))
}
