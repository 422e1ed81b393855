// Package pdf wraps the pdfcpu primitives the pipeline needs. All
// operations are byte-in/byte-out; pdfcpu's file-based API is driven
// through a per-call temp directory.
package pdf

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// Ops is the PDF capability consumed by the lifecycle, splitter and
// consolidation services.
type Ops interface {
	// PageCount returns the number of pages in a PDF payload.
	PageCount(data []byte) (int, error)
	// SplitToPages decomposes a PDF into single-page PDFs in original
	// page order.
	SplitToPages(data []byte) ([][]byte, error)
	// MergePages concatenates single- or multi-page PDF payloads in the
	// given order.
	MergePages(pages [][]byte) ([]byte, error)
	// ImageToPDFPage renders an image payload as a one-page PDF.
	ImageToPDFPage(data []byte, mimeType string) ([]byte, error)
}

type Processor struct{}

func NewProcessor() *Processor { return &Processor{} }

func conf() *model.Configuration {
	cfg := model.NewDefaultConfiguration()
	cfg.ValidationMode = model.ValidationRelaxed
	return cfg
}

func (p *Processor) PageCount(data []byte) (int, error) {
	tempDir, err := os.MkdirTemp("", "docflow-pdf-*")
	if err != nil {
		return 0, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tempDir)

	src := filepath.Join(tempDir, "source.pdf")
	if err := os.WriteFile(src, data, 0o600); err != nil {
		return 0, fmt.Errorf("failed to write temp pdf: %w", err)
	}

	count, err := api.PageCountFile(src)
	if err != nil {
		return 0, fmt.Errorf("failed to count pages: %w", err)
	}
	return count, nil
}

func (p *Processor) SplitToPages(data []byte) ([][]byte, error) {
	tempDir, err := os.MkdirTemp("", "docflow-pdf-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tempDir)

	src := filepath.Join(tempDir, "source.pdf")
	if err := os.WriteFile(src, data, 0o600); err != nil {
		return nil, fmt.Errorf("failed to write temp pdf: %w", err)
	}

	count, err := api.PageCountFile(src)
	if err != nil {
		return nil, fmt.Errorf("failed to count pages: %w", err)
	}

	if err := api.SplitFile(src, tempDir, 1, conf()); err != nil {
		return nil, fmt.Errorf("failed to split pdf: %w", err)
	}

	// pdfcpu names single-page output <base>_<page>.pdf.
	pages := make([][]byte, 0, count)
	for i := 1; i <= count; i++ {
		pagePath := filepath.Join(tempDir, fmt.Sprintf("source_%d.pdf", i))
		page, err := os.ReadFile(pagePath)
		if err != nil {
			return nil, fmt.Errorf("failed to read split page %d: %w", i, err)
		}
		pages = append(pages, page)
	}
	return pages, nil
}

func (p *Processor) MergePages(pages [][]byte) ([]byte, error) {
	if len(pages) == 0 {
		return nil, fmt.Errorf("nothing to merge")
	}

	tempDir, err := os.MkdirTemp("", "docflow-pdf-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tempDir)

	inFiles := make([]string, 0, len(pages))
	for i, page := range pages {
		path := filepath.Join(tempDir, fmt.Sprintf("part_%04d.pdf", i))
		if err := os.WriteFile(path, page, 0o600); err != nil {
			return nil, fmt.Errorf("failed to write merge input %d: %w", i, err)
		}
		inFiles = append(inFiles, path)
	}

	outFile := filepath.Join(tempDir, "merged.pdf")
	if err := api.MergeCreateFile(inFiles, outFile, false, conf()); err != nil {
		return nil, fmt.Errorf("failed to merge pdfs: %w", err)
	}

	merged, err := os.ReadFile(outFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read merged pdf: %w", err)
	}
	return merged, nil
}

func (p *Processor) ImageToPDFPage(data []byte, mimeType string) ([]byte, error) {
	tempDir, err := os.MkdirTemp("", "docflow-img-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tempDir)

	imgData, ext, err := flattenImage(data, mimeType)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	imgPath := filepath.Join(tempDir, "page"+ext)
	if err := os.WriteFile(imgPath, imgData, 0o600); err != nil {
		return nil, fmt.Errorf("failed to write temp image: %w", err)
	}

	outFile := filepath.Join(tempDir, "page.pdf")
	if err := api.ImportImagesFile([]string{imgPath}, outFile, nil, conf()); err != nil {
		return nil, fmt.Errorf("failed to import image: %w", err)
	}

	page, err := os.ReadFile(outFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read image pdf: %w", err)
	}
	return page, nil
}
