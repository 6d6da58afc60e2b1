package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Synthesis describes how the external synthesis process is launched. The
// flag names are deployment-specific; the defaults match the SadTalker based
// inference script.
type Synthesis struct {
	Executable      string   `toml:"executable"`
	Args            []string `toml:"args"`
	Dir             string   `toml:"dir"`
	VideoExtensions []string `toml:"video_extensions"`
	Flags           Flags    `toml:"flags"`
}

// Flags names the command-line flag used for each invocation parameter.
type Flags struct {
	SourceImage    string `toml:"source_image"`
	Query          string `toml:"query"`
	Document       string `toml:"document"`
	SourceLang     string `toml:"source_lang"`
	TargetLang     string `toml:"target_lang"`
	ResultDir      string `toml:"result_dir"`
	ReferenceAudio string `toml:"reference_audio"`
	Enhancer       string `toml:"enhancer"`
}

func DefaultSynthesis() *Synthesis {
	return &Synthesis{
		Executable:      "python3",
		Args:            []string{"inference3.py"},
		VideoExtensions: []string{".mp4"},
		Flags:           defaultFlags(),
	}
}

func defaultFlags() Flags {
	return Flags{
		SourceImage:    "--source_image",
		Query:          "--rag_query",
		Document:       "--rag_document",
		SourceLang:     "--source_lang",
		TargetLang:     "--target_lang",
		ResultDir:      "--result_dir",
		ReferenceAudio: "--reference_audio",
		Enhancer:       "--enhancer",
	}
}

// LoadSynthesis reads a TOML profile. Keys missing from the file keep their
// default values.
func LoadSynthesis(path string) (*Synthesis, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	s := DefaultSynthesis()
	if err := toml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return s, nil
}

func (s *Synthesis) Validate() error {
	if strings.TrimSpace(s.Executable) == "" {
		return errors.New("executable must not be empty")
	}
	if len(s.VideoExtensions) == 0 {
		return errors.New("video_extensions must not be empty")
	}
	for i, ext := range s.VideoExtensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		if len(ext) < 2 {
			return fmt.Errorf("invalid video extension %q", s.VideoExtensions[i])
		}
		s.VideoExtensions[i] = ext
	}

	required := map[string]string{
		"source_image": s.Flags.SourceImage,
		"query":        s.Flags.Query,
		"document":     s.Flags.Document,
		"result_dir":   s.Flags.ResultDir,
	}
	for name, flag := range required {
		if flag == "" {
			return fmt.Errorf("flags.%s must not be empty", name)
		}
	}
	return nil
}
