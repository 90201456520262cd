package pipeline

import (
	_ "embed"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gogpu/naga"
	"github.com/pkg/errors"

	"teapot/internal/logging"
)

//go:embed shaders/simple.wgsl
var simpleShaderWGSL string

// SPIR-V file names looked up by LoadStages.
const (
	VertexShaderFile   = "simple_shader.vert.spv"
	FragmentShaderFile = "simple_shader.frag.spv"
)

const spirvMagic = 0x07230203

// ShaderStage is SPIR-V code and the name of its entry point.
type ShaderStage struct {
	Code  []uint32
	Entry string
}

type ShaderStages struct {
	Vertex   ShaderStage
	Fragment ShaderStage
}

// LoadSPIRV reads a compiled SPIR-V module.
func LoadSPIRV(path, entry string) (ShaderStage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ShaderStage{}, errors.Wrap(err, "failed to open file")
	}
	code, err := bytesToWords(data)
	if err != nil {
		return ShaderStage{}, errors.Wrap(err, path)
	}
	return ShaderStage{Code: code, Entry: entry}, nil
}

// CompileWGSL compiles a WGSL module holding both entry points to SPIR-V.
func CompileWGSL(source, vertexEntry, fragmentEntry string) (ShaderStages, error) {
	spirv, err := naga.Compile(source)
	if err != nil {
		return ShaderStages{}, errors.Wrap(err, "failed to compile shader")
	}
	code, err := bytesToWords(spirv)
	if err != nil {
		return ShaderStages{}, err
	}
	return ShaderStages{
		Vertex:   ShaderStage{Code: code, Entry: vertexEntry},
		Fragment: ShaderStage{Code: code, Entry: fragmentEntry},
	}, nil
}

// DefaultStages compiles the built-in shader.
func DefaultStages() (ShaderStages, error) {
	return CompileWGSL(simpleShaderWGSL, "vs_main", "fs_main")
}

// LoadStages uses the SPIR-V pair in dir when both files exist. Otherwise
// dir/simple.wgsl is compiled if present, and the built-in shader is the
// last resort.
func LoadStages(dir string) (ShaderStages, error) {
	if dir == "" {
		return DefaultStages()
	}
	vertPath := filepath.Join(dir, VertexShaderFile)
	fragPath := filepath.Join(dir, FragmentShaderFile)
	if fileExists(vertPath) && fileExists(fragPath) {
		vert, err := LoadSPIRV(vertPath, "main")
		if err != nil {
			return ShaderStages{}, err
		}
		frag, err := LoadSPIRV(fragPath, "main")
		if err != nil {
			return ShaderStages{}, err
		}
		logging.Logger().Debug("loaded SPIR-V shaders", "dir", dir)
		return ShaderStages{Vertex: vert, Fragment: frag}, nil
	}
	wgslPath := filepath.Join(dir, "simple.wgsl")
	if src, err := os.ReadFile(wgslPath); err == nil {
		logging.Logger().Debug("compiling WGSL shader", "path", wgslPath)
		return CompileWGSL(string(src), "vs_main", "fs_main")
	}
	return DefaultStages()
}

func fileExists(path string) bool {
	st, err := os.Stat(path)
	return err == nil && !st.IsDir()
}

func bytesToWords(b []byte) ([]uint32, error) {
	if len(b) == 0 || len(b)%4 != 0 {
		return nil, fmt.Errorf("SPIR-V size %d is not a positive multiple of 4", len(b))
	}
	words := make([]uint32, len(b)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(b[i*4:])
	}
	if words[0] != spirvMagic {
		return nil, fmt.Errorf("bad SPIR-V magic %#08x", words[0])
	}
	return words, nil
}
