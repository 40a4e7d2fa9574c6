package vectorindex

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"path/filepath"

	"github.com/kart-io/logger"

	"github.com/kart-io/docquery/internal/model"
	"github.com/kart-io/docquery/pkg/llm"
	"github.com/kart-io/docquery/pkg/utils/json"
)

// 落盘文件名。
const (
	VectorsFile  = "index.vec"
	PassagesFile = "passages.json"
)

const (
	vectorMagic   = "DQIX"
	vectorVersion = uint32(1)
	headerSize    = 16
)

type passagesDocument struct {
	Dimension int             `json:"dimension"`
	Passages  []model.Passage `json:"passages"`
}

// Save 将索引写入 dir：index.vec 保存向量，passages.json 保存片段与维度。
//
// index.vec 格式（小端）：4 字节 "DQIX"、uint32 版本、uint32 条数、
// uint32 维度，之后为条数×维度个 float32。
func (m *MemoryIndex) Save(dir string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.vectors == nil {
		return ErrIndexNotBuilt
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}

	if err := writeFileAtomic(filepath.Join(dir, VectorsFile), func(w io.Writer) error {
		return writeVectors(w, m.vectors, m.dimension)
	}); err != nil {
		return err
	}

	data, err := json.MarshalIndent(passagesDocument{Dimension: m.dimension, Passages: m.passages}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode passages: %w", err)
	}
	if err := writeFileAtomic(filepath.Join(dir, PassagesFile), func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	}); err != nil {
		return err
	}

	logger.Infow("index saved", "dir", dir, "passages", len(m.passages), "dimension", m.dimension)
	return nil
}

// Load 从 dir 恢复索引，替换当前内容。任一文件缺失时返回 ErrIndexNotFound。
func (m *MemoryIndex) Load(dir string) error {
	vecPath := filepath.Join(dir, VectorsFile)
	passPath := filepath.Join(dir, PassagesFile)
	for _, p := range []string{vecPath, passPath} {
		if _, err := os.Stat(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("%w: %s", ErrIndexNotFound, p)
			}
			return fmt.Errorf("stat %s: %w", p, err)
		}
	}

	raw, err := os.ReadFile(passPath)
	if err != nil {
		return fmt.Errorf("read passages: %w", err)
	}
	var doc passagesDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("decode passages: %w", err)
	}

	f, err := os.Open(vecPath)
	if err != nil {
		return fmt.Errorf("open vectors: %w", err)
	}
	defer func() { _ = f.Close() }()

	vectors, dim, err := readVectors(bufio.NewReader(f))
	if err != nil {
		return err
	}
	if dim != doc.Dimension {
		return fmt.Errorf("%w: vectors have %d dimensions, passages file says %d", ErrDimensionMismatch, dim, doc.Dimension)
	}
	if len(vectors) != len(doc.Passages) {
		return fmt.Errorf("index corrupt: %d vectors for %d passages", len(vectors), len(doc.Passages))
	}
	if len(vectors) == 0 {
		return fmt.Errorf("index corrupt: no vectors")
	}

	m.mu.Lock()
	m.passages = doc.Passages
	m.vectors = vectors
	m.dimension = dim
	m.mu.Unlock()
	return nil
}

// LoadMemoryIndex 从 dir 加载索引，provider 用于后续查询向量化。
func LoadMemoryIndex(dir string, provider llm.EmbeddingProvider, batchSize int) (*MemoryIndex, error) {
	m := NewMemoryIndex(provider, batchSize)
	if err := m.Load(dir); err != nil {
		return nil, err
	}
	return m, nil
}

func writeVectors(w io.Writer, vectors [][]float32, dim int) error {
	header := make([]byte, headerSize)
	copy(header, vectorMagic)
	binary.LittleEndian.PutUint32(header[4:], vectorVersion)
	binary.LittleEndian.PutUint32(header[8:], uint32(len(vectors)))
	binary.LittleEndian.PutUint32(header[12:], uint32(dim))
	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	row := make([]byte, 4*dim)
	for _, v := range vectors {
		for j, x := range v {
			binary.LittleEndian.PutUint32(row[4*j:], math.Float32bits(x))
		}
		if _, err := w.Write(row); err != nil {
			return fmt.Errorf("write vectors: %w", err)
		}
	}
	return nil
}

func readVectors(r io.Reader) ([][]float32, int, error) {
	header := make([]byte, headerSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, 0, fmt.Errorf("index corrupt: read header: %w", err)
	}
	if string(header[:4]) != vectorMagic {
		return nil, 0, fmt.Errorf("index corrupt: bad magic %q", header[:4])
	}
	if v := binary.LittleEndian.Uint32(header[4:]); v != vectorVersion {
		return nil, 0, fmt.Errorf("index corrupt: unsupported version %d", v)
	}
	count := int(binary.LittleEndian.Uint32(header[8:]))
	dim := int(binary.LittleEndian.Uint32(header[12:]))
	if dim <= 0 {
		return nil, 0, fmt.Errorf("%w: dimension %d", ErrDimensionMismatch, dim)
	}

	vectors := make([][]float32, 0, min(count, 1<<16))
	row := make([]byte, 4*dim)
	for i := 0; i < count; i++ {
		if _, err := io.ReadFull(r, row); err != nil {
			return nil, 0, fmt.Errorf("index corrupt: read vector %d: %w", i, err)
		}
		v := make([]float32, dim)
		for j := range v {
			v[j] = math.Float32frombits(binary.LittleEndian.Uint32(row[4*j:]))
		}
		vectors = append(vectors, v)
	}

	// 文件尾部不应有多余数据
	if n, _ := io.Copy(io.Discard, r); n > 0 {
		return nil, 0, fmt.Errorf("index corrupt: %d trailing bytes", n)
	}
	return vectors, dim, nil
}

func writeFileAtomic(path string, write func(io.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	bw := bufio.NewWriter(tmp)
	if err := write(bw); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}
