package scanconfig

import (
	"encoding/json"
	"testing"
)

// TestDefault проверяет, что конфигурация по умолчанию полностью заполнена и валидна.
func TestDefault(t *testing.T) {
	cfg := Default()

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default(): неожиданная ошибка валидации: %v", err)
	}

	if cfg.Format != FormatJPEG {
		t.Errorf("ожидался Format=JPEG, получен %d", cfg.Format)
	}
	if cfg.ScanSide != SideDuplex {
		t.Errorf("ожидался ScanSide=duplex, получен %d", cfg.ScanSide)
	}
	if cfg.SkipBlankPage != On {
		t.Errorf("ожидался SkipBlankPage=On, получен %d", cfg.SkipBlankPage)
	}
}

// TestValidate проверяет отклонение значений вне закрытых наборов.
func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"default", func(c *Config) {}, false},
		{"pdf", func(c *Config) { c.Format = FormatPDF }, false},
		{"simplex", func(c *Config) { c.ScanSide = SideSimplex }, false},
		{"paper_out_of_range", func(c *Config) { c.PaperSize = 99 }, true},
		{"color_negative", func(c *Config) { c.ColorMode = -1 }, true},
		{"compression_zero", func(c *Config) { c.Compression = 0 }, true},
		{"format_unknown", func(c *Config) { c.Format = 7 }, true},
		{"toggle_invalid", func(c *Config) { c.MultiFeed = 2 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr && err == nil {
				t.Error("ожидалась ошибка, получен nil")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("неожиданная ошибка: %v", err)
			}
		})
	}
}

// TestIsImageFormat проверяет определение форматов изображений.
func TestIsImageFormat(t *testing.T) {
	cfg := Default()

	cfg.Format = FormatJPEG
	if !cfg.IsImageFormat() {
		t.Error("JPEG должен быть форматом изображения")
	}

	cfg.Format = FormatPDF
	if cfg.IsImageFormat() {
		t.Error("PDF не должен быть форматом изображения")
	}
}

// TestJSONKeys проверяет имена полей в JSON-теле запроса startscan.
func TestJSONKeys(t *testing.T) {
	data, err := json.Marshal(Default())
	if err != nil {
		t.Fatalf("ошибка сериализации: %v", err)
	}

	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("ошибка десериализации: %v", err)
	}

	keys := []string{
		"paperSize", "colorMode", "scanSide", "compression",
		"rotation", "format", "ocrLang", "skipBlankPage", "multiFeedDetection",
	}
	for _, k := range keys {
		if _, ok := m[k]; !ok {
			t.Errorf("в JSON отсутствует ключ %q", k)
		}
	}
	if len(m) != len(keys) {
		t.Errorf("ожидалось %d ключей, получено %d", len(keys), len(m))
	}
}
