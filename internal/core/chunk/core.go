package chunk

import (
	"cmp"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/disk"
)

// Prober 检查分片能否被解码
type Prober interface {
	Readable(path string) bool
}

// Store 管理磁盘上滚动保存的直播分片
// 目录即数据源，不额外维护索引
type Store struct {
	dir        string
	maxCount   int
	minSize    int64
	quiescence time.Duration
	probe      Prober
	now        func() time.Time

	// 串行化淘汰，读取方不加锁，需要自行容忍文件消失
	m   sync.Mutex
	log *slog.Logger
}

type Option func(*Store)

// WithMaxCount 最多保留的分片数量
func WithMaxCount(n int) Option {
	return func(s *Store) {
		s.maxCount = n
	}
}

// WithMinSize 小于该值的分片视为无效
func WithMinSize(n int64) Option {
	return func(s *Store) {
		s.minSize = n
	}
}

// WithQuiescence 最近修改时间在该时长内的文件可能仍在写入
func WithQuiescence(d time.Duration) Option {
	return func(s *Store) {
		s.quiescence = d
	}
}

// WithProber 注入可读性检查
func WithProber(p Prober) Option {
	return func(s *Store) {
		s.probe = p
	}
}

// NewStore 目录不存在时创建
func NewStore(dir string, opts ...Option) (*Store, error) {
	s := Store{
		dir:        dir,
		maxCount:   10,
		minSize:    100000,
		quiescence: 3 * time.Second,
		now:        time.Now,
		log:        slog.With("core", "chunk"),
	}
	for _, opt := range opts {
		opt(&s)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create chunk dir: %w", err)
	}
	return &s, nil
}

func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) MaxCount() int {
	return s.maxCount
}

// Validate 文件存在且大小超过下限
func (s *Store) Validate(path string) (os.FileInfo, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if fi.Size() <= s.minSize {
		return nil, fmt.Errorf("%w: %s size[%d]", ErrUndersized, path, fi.Size())
	}
	return fi, nil
}

// Register 校验文件并补全元数据
func (s *Store) Register(c *Chunk) error {
	fi, err := s.Validate(c.Path)
	if err != nil {
		return err
	}
	c.Name = filepath.Base(c.Path)
	c.Size = fi.Size()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = fi.ModTime()
	}
	s.log.Info("chunk registered", "name", c.Name, "size", c.Size)
	return nil
}

type entry struct {
	Chunk
	modTime time.Time
}

func (s *Store) scan() ([]entry, error) {
	des, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	out := make([]entry, 0, len(des))
	for _, de := range des {
		if de.IsDir() || !isLiveFile(de.Name()) {
			continue
		}
		fi, err := de.Info()
		if err != nil {
			// 扫描过程中被删除
			continue
		}
		out = append(out, entry{
			Chunk: Chunk{
				Path:      filepath.Join(s.dir, de.Name()),
				Name:      de.Name(),
				Size:      fi.Size(),
				CreatedAt: fi.ModTime(),
			},
			modTime: fi.ModTime(),
		})
	}
	slices.SortFunc(out, func(a, b entry) int {
		if c := a.modTime.Compare(b.modTime); c != 0 {
			return c
		}
		return cmp.Compare(a.Name, b.Name)
	})
	return out, nil
}

// ListOrderedByAge 按修改时间从旧到新
func (s *Store) ListOrderedByAge() ([]Chunk, error) {
	entries, err := s.scan()
	if err != nil {
		return nil, err
	}
	out := make([]Chunk, len(entries))
	for i, e := range entries {
		out[i] = e.Chunk
	}
	return out, nil
}

// Latest 最新的可用分片
// 跳过仍可能在写入的、过小的、无法解码的文件
func (s *Store) Latest() (Chunk, error) {
	entries, err := s.scan()
	if err != nil {
		return Chunk{}, err
	}
	now := s.now()
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		if age := now.Sub(e.modTime); age < s.quiescence {
			s.log.Debug("skip recent chunk", "name", e.Name, "age", age)
			continue
		}
		if e.Size <= s.minSize {
			s.log.Debug("skip small chunk", "name", e.Name, "size", e.Size)
			continue
		}
		if s.probe != nil && !s.probe.Readable(e.Path) {
			s.log.Warn("skip unreadable chunk", "name", e.Name)
			continue
		}
		return e.Chunk, nil
	}
	return Chunk{}, ErrNotFound
}

// NearestTo 文件名中时间与 t 最接近的分片
func (s *Store) NearestTo(t time.Time) (Chunk, error) {
	entries, err := s.scan()
	if err != nil {
		return Chunk{}, err
	}
	var (
		best    Chunk
		minDiff time.Duration = -1
	)
	for _, e := range entries {
		at, err := ParseLiveName(e.Name)
		if err != nil {
			continue
		}
		diff := t.Sub(at)
		if diff < 0 {
			diff = -diff
		}
		if minDiff < 0 || diff < minDiff {
			minDiff = diff
			best = e.Chunk
		}
	}
	if minDiff < 0 {
		return Chunk{}, ErrNotFound
	}
	return best, nil
}

// Get 按文件名获取，拒绝目录穿越
func (s *Store) Get(name string) (Chunk, error) {
	if name != filepath.Base(name) || !isLiveFile(name) {
		return Chunk{}, fmt.Errorf("%w: %s", ErrInvalidName, name)
	}
	path := filepath.Join(s.dir, name)
	fi, err := os.Stat(path)
	if err != nil {
		return Chunk{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return Chunk{Path: path, Name: name, Size: fi.Size(), CreatedAt: fi.ModTime()}, nil
}

// Usage 分片目录所在磁盘的使用情况
func (s *Store) Usage() (*disk.UsageStat, error) {
	return disk.Usage(s.dir)
}
