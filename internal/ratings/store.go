package ratings

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"

	"github.com/gofrs/flock"
)

// MaxIndex 是最高评分的索引（5 星）。
const MaxIndex = 4

// ErrInvalidRating 表示评分索引越界。
var ErrInvalidRating = errors.New("rating index out of range")

// Rating 是单部影片的评分记录。
type Rating struct {
	MovieID int64 `json:"movie_id"`
	Index   int   `json:"index"`
}

// Stars 返回 1..5 星。
func (r Rating) Stars() int {
	return r.Index + 1
}

// Store 是基于 JSON 文件的评分存储。内存副本用于读；写入时在文件锁内重新读取磁盘，
// 合并后原子替换。
type Store struct {
	path string
	lock *flock.Flock

	// fileMu 串行化本进程内对 lock 的使用，flock.Flock 在同一实例上不可重入。
	fileMu sync.Mutex

	mu      sync.RWMutex
	ratings map[int64]int
}

// Open 加载 path 处的评分文件；文件不存在时视为空。
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("ratings path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create ratings dir: %w", err)
	}
	s := &Store{
		path:    path,
		lock:    flock.New(path + ".lock"),
		ratings: make(map[int64]int),
	}
	if err := s.Load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path 返回评分文件路径。
func (s *Store) Path() string {
	return s.path
}

// Load 在共享锁下重新读取评分文件，覆盖内存副本。
func (s *Store) Load() error {
	s.fileMu.Lock()
	defer s.fileMu.Unlock()
	if err := s.lock.RLock(); err != nil {
		return fmt.Errorf("lock ratings: %w", err)
	}
	defer s.lock.Unlock()

	ratings, err := s.readFile()
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.ratings = ratings
	s.mu.Unlock()
	return nil
}

// Get 返回影片评分。
func (s *Store) Get(movieID int64) (Rating, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.ratings[movieID]
	if !ok {
		return Rating{}, false
	}
	return Rating{MovieID: movieID, Index: idx}, true
}

// All 返回全部评分，按 MovieID 升序。
func (s *Store) All() []Rating {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]Rating, 0, len(s.ratings))
	for id, idx := range s.ratings {
		result = append(result, Rating{MovieID: id, Index: idx})
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].MovieID < result[j].MovieID
	})
	return result
}

// Set 写入评分；index 为负数时清除。
func (s *Store) Set(movieID int64, index int) error {
	if index > MaxIndex {
		return fmt.Errorf("%w: %d", ErrInvalidRating, index)
	}
	return s.mutate(func(ratings map[int64]int) {
		if index < 0 {
			delete(ratings, movieID)
			return
		}
		ratings[movieID] = index
	})
}

// Toggle 与界面上点击星级的行为一致：再次选择当前评分即清除。
// 返回操作后的评分以及是否仍有评分。
func (s *Store) Toggle(movieID int64, index int) (Rating, bool, error) {
	if index < 0 || index > MaxIndex {
		return Rating{}, false, fmt.Errorf("%w: %d", ErrInvalidRating, index)
	}
	var (
		result Rating
		rated  bool
	)
	err := s.mutate(func(ratings map[int64]int) {
		if current, ok := ratings[movieID]; ok && current == index {
			delete(ratings, movieID)
			return
		}
		ratings[movieID] = index
		result = Rating{MovieID: movieID, Index: index}
		rated = true
	})
	if err != nil {
		return Rating{}, false, err
	}
	return result, rated, nil
}

// mutate 在排他文件锁内读取磁盘最新内容、应用修改并原子写回。
func (s *Store) mutate(apply func(map[int64]int)) error {
	s.fileMu.Lock()
	defer s.fileMu.Unlock()
	if err := s.lock.Lock(); err != nil {
		return fmt.Errorf("lock ratings: %w", err)
	}
	defer s.lock.Unlock()

	ratings, err := s.readFile()
	if err != nil {
		return err
	}
	apply(ratings)
	if err := s.writeFile(ratings); err != nil {
		return err
	}

	s.mu.Lock()
	s.ratings = ratings
	s.mu.Unlock()
	return nil
}

func (s *Store) readFile() (map[int64]int, error) {
	ratings := make(map[int64]int)
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ratings, nil
		}
		return nil, fmt.Errorf("read ratings: %w", err)
	}
	if len(data) == 0 {
		return ratings, nil
	}

	var raw map[string]int
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse ratings %s: %w", s.path, err)
	}
	for key, idx := range raw {
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse ratings %s: invalid movie id %q", s.path, key)
		}
		if idx < 0 || idx > MaxIndex {
			return nil, fmt.Errorf("parse ratings %s: %w: %d", s.path, ErrInvalidRating, idx)
		}
		ratings[id] = idx
	}
	return ratings, nil
}

func (s *Store) writeFile(ratings map[int64]int) error {
	raw := make(map[string]int, len(ratings))
	for id, idx := range ratings {
		raw[strconv.FormatInt(id, 10)] = idx
	}
	data, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return fmt.Errorf("encode ratings: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".ratings-*")
	if err != nil {
		return fmt.Errorf("write ratings: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write ratings: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write ratings: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write ratings: %w", err)
	}
	return nil
}
