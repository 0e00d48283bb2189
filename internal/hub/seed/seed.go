// Package seed imports initial hub state from a YAML file on startup.
package seed

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/contracthub-dev/contracthub/internal/hub/service"
	"github.com/contracthub-dev/contracthub/internal/hub/types"
)

// uploadChunkSize is how the importer slices staged binaries. Unrelated to
// the install chunk size in HubConfig.
const uploadChunkSize = 1 << 20

// Template pairs a template definition with its binary source. Exactly one
// of BinaryFile and BinaryBase64 must be set; BinaryFile is resolved
// relative to the seed file.
type Template struct {
	Definition   types.TemplateDefinition `yaml:"definition"`
	BinaryFile   string                   `yaml:"binary_file,omitempty"`
	BinaryBase64 string                   `yaml:"binary_base64,omitempty"`
}

// File is the on-disk seed format.
type File struct {
	AccessRights []types.AccessRight `yaml:"access_rights,omitempty"`
	Config       *types.HubConfig    `yaml:"config,omitempty"`
	Templates    []Template          `yaml:"templates,omitempty"`
}

// ImportFromPath loads a seed file and applies it through the service. The
// context must carry system credentials. Templates are only imported while
// the catalog is empty, so restarting against a persistent store does not
// duplicate them.
func ImportFromPath(ctx context.Context, hub service.HubService, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read seed file: %w", err)
	}

	var seed File
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return fmt.Errorf("parse seed file: %w", err)
	}

	if seed.Config != nil {
		if err := hub.SetConfig(ctx, *seed.Config); err != nil {
			return fmt.Errorf("apply seed config: %w", err)
		}
	}

	if len(seed.AccessRights) > 0 {
		existing, err := hub.GetAccessRights(ctx)
		if err != nil {
			return fmt.Errorf("read access rights: %w", err)
		}
		if len(existing) == 0 {
			if err := hub.SetAccessRights(ctx, seed.AccessRights); err != nil {
				return fmt.Errorf("apply seed access rights: %w", err)
			}
		}
	}

	if len(seed.Templates) > 0 {
		_, total, err := hub.GetTemplates(ctx, 0, 1)
		if err != nil {
			return fmt.Errorf("read templates: %w", err)
		}
		if total == 0 {
			baseDir := filepath.Dir(path)
			for i := range seed.Templates {
				if err := importTemplate(ctx, hub, baseDir, &seed.Templates[i]); err != nil {
					return fmt.Errorf("import template %q: %w", seed.Templates[i].Definition.Name, err)
				}
			}
		}
	}

	return nil
}

func importTemplate(ctx context.Context, hub service.HubService, baseDir string, tpl *Template) error {
	binary, err := templateBinary(baseDir, tpl)
	if err != nil {
		return err
	}

	if err := hub.SetUploadGrant(ctx, len(binary)); err != nil {
		return fmt.Errorf("grant upload: %w", err)
	}
	for off := 0; off < len(binary); off += uploadChunkSize {
		end := min(off+uploadChunkSize, len(binary))
		if err := hub.UploadBinaryChunk(ctx, binary[off:end]); err != nil {
			return fmt.Errorf("upload chunk: %w", err)
		}
	}

	if _, err := hub.AddTemplate(ctx, tpl.Definition); err != nil {
		return fmt.Errorf("register: %w", err)
	}
	return nil
}

func templateBinary(baseDir string, tpl *Template) ([]byte, error) {
	switch {
	case tpl.BinaryFile != "" && tpl.BinaryBase64 != "":
		return nil, fmt.Errorf("binary_file and binary_base64 are mutually exclusive")
	case tpl.BinaryFile != "":
		p := tpl.BinaryFile
		if !filepath.IsAbs(p) {
			p = filepath.Join(baseDir, p)
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read binary: %w", err)
		}
		return data, nil
	case tpl.BinaryBase64 != "":
		data, err := base64.StdEncoding.DecodeString(tpl.BinaryBase64)
		if err != nil {
			return nil, fmt.Errorf("decode binary: %w", err)
		}
		return data, nil
	}
	return nil, fmt.Errorf("template needs binary_file or binary_base64")
}
