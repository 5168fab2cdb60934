package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v2"
)

// Profile holds the fixed encoder parameters applied to every file.
type Profile struct {
	Binary     string   `yaml:"binary"`
	Codec      string   `yaml:"codec"`
	CRF        int      `yaml:"crf"`
	Preset     string   `yaml:"preset"`
	Tune       string   `yaml:"tune"`
	LogLevel   string   `yaml:"loglevel"`
	CPULimit   int      `yaml:"cpu_limit"` // percent of one core, 0 disables throttling
	Extensions []string `yaml:"extensions"`
}

func DefaultProfile() Profile {
	return Profile{
		Binary:     "ffmpeg",
		Codec:      "libx265",
		CRF:        28,
		Preset:     "medium",
		Tune:       "zerolatency",
		LogLevel:   "debug",
		CPULimit:   50,
		Extensions: []string{".mp4", ".mkv", ".mov", ".avi", ".m4v", ".webm"},
	}
}

// LoadProfile reads a YAML profile. Missing fields keep their defaults.
func LoadProfile(path string) (*Profile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open profile: %w", err)
	}
	defer f.Close()

	p := DefaultProfile()
	if err := yaml.NewDecoder(f).Decode(&p); err != nil {
		return nil, fmt.Errorf("decode profile %s: %w", path, err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

func (p *Profile) Validate() error {
	if strings.TrimSpace(p.Binary) == "" {
		return fmt.Errorf("%w: profile binary is empty", ErrInvalidArgument)
	}
	if strings.TrimSpace(p.Codec) == "" {
		return fmt.Errorf("%w: profile codec is empty", ErrInvalidArgument)
	}
	if p.CRF < 0 || p.CRF > 51 {
		return fmt.Errorf("%w: crf %d out of range 0-51", ErrInvalidArgument, p.CRF)
	}
	if p.CPULimit < 0 {
		return fmt.Errorf("%w: cpu_limit must be >= 0", ErrInvalidArgument)
	}
	if len(p.Extensions) == 0 {
		return fmt.Errorf("%w: profile lists no extensions", ErrInvalidArgument)
	}
	for i, ext := range p.Extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		p.Extensions[i] = ext
	}
	return nil
}

// ExtensionSet returns the media extensions as a lookup table.
func (p Profile) ExtensionSet() map[string]bool {
	set := make(map[string]bool, len(p.Extensions))
	for _, ext := range p.Extensions {
		set[strings.ToLower(ext)] = true
	}
	return set
}
