// Пакет scanconfig — параметры сканирования, отправляемые устройству
// при каждом запросе startscan.
//
// Каждое поле — целочисленный код из закрытого именованного набора.
// Конфигурация всегда полностью заполнена: Default() задаёт все поля,
// частичные обновления изменяют отдельные поля на месте.
package scanconfig

import "fmt"

// PaperSize — размер бумаги.
type PaperSize int

const (
	PaperAuto PaperSize = iota
	PaperA4
	PaperA5
	PaperA6
	PaperB5
	PaperB6
	PaperLetter
	PaperLegal
	PaperPostcard
	PaperBusinessCard
)

// ColorMode — цветовой режим сканирования.
type ColorMode int

const (
	ColorAuto ColorMode = iota
	ColorColor
	ColorGray
	ColorBW
)

// ScanSide — односторонний или двусторонний скан.
type ScanSide int

const (
	SideDuplex ScanSide = iota
	SideSimplex
)

// Compression — уровень сжатия (1 — минимальное, 5 — максимальное).
type Compression int

const (
	CompressionLow    Compression = 1
	CompressionMedium Compression = 3
	CompressionHigh   Compression = 5
)

// Rotation — автоповорот страниц.
type Rotation int

const (
	RotationAuto Rotation = iota
	RotationNone
	Rotation90
	Rotation180
	Rotation270
)

// Format — формат выходного файла.
type Format int

const (
	FormatPDF Format = iota
	FormatJPEG
)

// OCRLang — язык распознавания текста.
type OCRLang int

const (
	OCRNone OCRLang = iota
	OCRJapanese
	OCREnglish
	OCRChinese
	OCRKorean
)

// Toggle — двоичный параметр устройства (0 — выключено, 1 — включено).
type Toggle int

const (
	Off Toggle = 0
	On  Toggle = 1
)

// Config — полный набор параметров устройства, отправляемый с каждым
// запросом сканирования. Все поля всегда заполнены.
type Config struct {
	PaperSize     PaperSize   `json:"paperSize"`
	ColorMode     ColorMode   `json:"colorMode"`
	ScanSide      ScanSide    `json:"scanSide"`
	Compression   Compression `json:"compression"`
	Rotation      Rotation    `json:"rotation"`
	Format        Format      `json:"format"`
	OCRLang       OCRLang     `json:"ocrLang"`
	SkipBlankPage Toggle      `json:"skipBlankPage"`
	MultiFeed     Toggle      `json:"multiFeedDetection"`
}

// Default возвращает полностью заполненную конфигурацию по умолчанию:
// автоопределение размера и цвета, duplex, JPEG без OCR,
// пропуск пустых страниц и контроль захвата нескольких листов включены.
func Default() Config {
	return Config{
		PaperSize:     PaperAuto,
		ColorMode:     ColorAuto,
		ScanSide:      SideDuplex,
		Compression:   CompressionMedium,
		Rotation:      RotationAuto,
		Format:        FormatJPEG,
		OCRLang:       OCRNone,
		SkipBlankPage: On,
		MultiFeed:     On,
	}
}

// Validate проверяет, что каждое поле принадлежит своему закрытому набору.
func (c Config) Validate() error {
	if c.PaperSize < PaperAuto || c.PaperSize > PaperBusinessCard {
		return fmt.Errorf("недопустимый paperSize: %d", c.PaperSize)
	}
	if c.ColorMode < ColorAuto || c.ColorMode > ColorBW {
		return fmt.Errorf("недопустимый colorMode: %d", c.ColorMode)
	}
	if c.ScanSide != SideDuplex && c.ScanSide != SideSimplex {
		return fmt.Errorf("недопустимый scanSide: %d", c.ScanSide)
	}
	if c.Compression < CompressionLow || c.Compression > CompressionHigh {
		return fmt.Errorf("недопустимый compression: %d", c.Compression)
	}
	if c.Rotation < RotationAuto || c.Rotation > Rotation270 {
		return fmt.Errorf("недопустимый rotation: %d", c.Rotation)
	}
	if c.Format != FormatPDF && c.Format != FormatJPEG {
		return fmt.Errorf("недопустимый format: %d", c.Format)
	}
	if c.OCRLang < OCRNone || c.OCRLang > OCRKorean {
		return fmt.Errorf("недопустимый ocrLang: %d", c.OCRLang)
	}
	if c.SkipBlankPage != Off && c.SkipBlankPage != On {
		return fmt.Errorf("недопустимый skipBlankPage: %d", c.SkipBlankPage)
	}
	if c.MultiFeed != Off && c.MultiFeed != On {
		return fmt.Errorf("недопустимый multiFeedDetection: %d", c.MultiFeed)
	}
	return nil
}

// IsImageFormat возвращает true, если выходной формат — изображение.
// Для документных форматов (PDF) base64-выгрузка недоступна.
func (c Config) IsImageFormat() bool {
	return c.Format == FormatJPEG
}
