package common

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"cvcoach/internal/document"
	"cvcoach/internal/errors"
	"cvcoach/internal/suggestions"
	"cvcoach/internal/types"
	"cvcoach/internal/utils"
)

// FileProcessor handles common file operations
type FileProcessor struct {
	logger      *errors.Logger
	maxFileSize int64
}

// NewFileProcessor creates a new file processor instance. A maxFileSize of
// zero disables the size check.
func NewFileProcessor(logger *errors.Logger, maxFileSize int64) *FileProcessor {
	return &FileProcessor{logger: logger, maxFileSize: maxFileSize}
}

// ReadFile reads content from a file with proper error handling
func (fp *FileProcessor) ReadFile(filename string) (string, error) {
	file, err := os.Open(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return "", errors.NewIOError(errors.ErrCodeFileNotFound,
				fmt.Sprintf("File not found: %s", filename), err)
		}
		return "", errors.NewIOError(errors.ErrCodeFileNotReadable,
			fmt.Sprintf("Cannot read file: %s", filename), err)
	}
	defer func() {
		if err := file.Close(); err != nil {
			// Log the error but don't override the main operation result
			if fp.logger != nil {
				fp.logger.Warn("Failed to close file", "filename", filename, "error", err)
			}
		}
	}()

	content, err := io.ReadAll(file)
	if err != nil {
		return "", errors.NewIOError(errors.ErrCodeFileNotReadable,
			fmt.Sprintf("Failed to read file content: %s", filename), err)
	}

	return string(content), nil
}

// WriteFile writes content to a file with directory creation
func (fp *FileProcessor) WriteFile(filename, content string) error {
	dir := filepath.Dir(filename)
	if dir != "." {
		err := os.MkdirAll(dir, 0750)
		if err != nil {
			return errors.NewIOError("DIRECTORY_CREATE_FAILED",
				fmt.Sprintf("Cannot create directory: %s", dir), err)
		}
	}

	err := os.WriteFile(filename, []byte(content), 0600)
	if err != nil {
		return errors.NewIOError("FILE_WRITE_FAILED",
			fmt.Sprintf("Cannot write file: %s", filename), err)
	}

	return nil
}

// validateInput checks existence, size and extension of an input file
func (fp *FileProcessor) validateInput(filename string) error {
	if err := utils.ValidateInputFile(filename); err != nil {
		return errors.NewValidationError("INVALID_INPUT_FILE",
			fmt.Sprintf("Invalid file %s", filename), err)
	}

	if fp.maxFileSize > 0 {
		size, err := utils.FileSize(filename)
		if err != nil {
			return errors.NewIOError(errors.ErrCodeFileNotReadable,
				fmt.Sprintf("Cannot stat file: %s", filename), err)
		}
		if size > fp.maxFileSize {
			return errors.NewValidationError("INVALID_INPUT_FILE",
				fmt.Sprintf("File %s is %s, larger than the %s limit", filename,
					utils.FormatFileSize(size), utils.FormatFileSize(fp.maxFileSize)), nil)
		}
	}

	if !utils.IsJSONFile(filename) {
		if fp.logger != nil {
			fp.logger.Warn("File may not be a JSON file",
				"filename", filename)
		} else {
			fmt.Fprintf(os.Stderr, "Warning: %s may not be a JSON file\n", filename)
		}
	}
	return nil
}

// ReadDocument reads and decodes a CV document
func (fp *FileProcessor) ReadDocument(filename string) (document.Document, error) {
	if err := fp.validateInput(filename); err != nil {
		return document.Document{}, err
	}

	content, err := fp.ReadFile(filename)
	if err != nil {
		return document.Document{}, err // Error already wrapped by ReadFile
	}

	var doc document.Document
	if err := json.Unmarshal([]byte(content), &doc); err != nil {
		return document.Document{}, errors.NewValidationError(errors.ErrCodeInvalidFormat,
			fmt.Sprintf("File %s is not a valid CV document", filename), err)
	}
	return doc, nil
}

// ReadDocuments reads several CV documents in argument order
func (fp *FileProcessor) ReadDocuments(filenames ...string) ([]document.Document, error) {
	docs := make([]document.Document, len(filenames))
	for i, filename := range filenames {
		doc, err := fp.ReadDocument(filename)
		if err != nil {
			return nil, err
		}
		docs[i] = doc
	}
	return docs, nil
}

// ReadSuggestions reads a suggestion report or raw model output. Malformed
// elements are dropped the same way they are for live responses.
func (fp *FileProcessor) ReadSuggestions(filename string) ([]types.Suggestion, error) {
	if err := fp.validateInput(filename); err != nil {
		return nil, err
	}

	content, err := fp.ReadFile(filename)
	if err != nil {
		return nil, err
	}

	list, dropped, err := suggestions.ParseResponse(content)
	if err != nil {
		return nil, errors.NewValidationError(errors.ErrCodeInvalidFormat,
			fmt.Sprintf("File %s does not hold a suggestion list", filename), err)
	}
	if dropped > 0 && fp.logger != nil {
		fp.logger.Warn("Dropped malformed suggestions", "filename", filename, "dropped", dropped)
	}
	return list, nil
}

// ValidateOutputFile validates output file path
func (fp *FileProcessor) ValidateOutputFile(filename string) error {
	if filename == "" {
		return nil // stdout is valid
	}

	if err := utils.ValidateOutputFile(filename); err != nil {
		return errors.NewValidationError("INVALID_OUTPUT_FILE",
			fmt.Sprintf("Invalid output file: %s", filename), err)
	}

	return nil
}
