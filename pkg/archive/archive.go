// Package archive 把FrameDataQ金字塔存入BadgerDB，供查看端按宽度快速取数
package archive

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/Kevin-Rudy/zzping/pkg/aggregate"
	"github.com/Kevin-Rudy/zzping/pkg/framedataq"
	"github.com/Kevin-Rudy/zzping/pkg/logging"
	"github.com/Kevin-Rudy/zzping/pkg/metrics"
	"github.com/cespare/xxhash/v2"
	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
)

// 键空间前缀
const (
	prefixFrame = 'f' // f | host哈希 | 层 | unix毫秒
	prefixHost  = 'h' // h | host哈希 -> host名
)

const frameKeyLen = 1 + 8 + 1 + 8

// ErrUnknownHost 归档中没有该目标
var ErrUnknownHost = errors.New("归档中没有该目标")

// Config BadgerDB配置
type Config struct {
	// Path 数据库目录
	Path string

	// InMemory 仅用于测试
	InMemory bool

	// MaxMemoryMB 内存表上限，0表示使用较小的默认值
	MaxMemoryMB int64
}

// Archive 按目标与层存放聚合帧
type Archive struct {
	db *badger.DB
}

// New 打开归档
func New(cfg Config) (*Archive, error) {
	opts := badger.DefaultOptions(cfg.Path)
	if cfg.InMemory {
		opts = opts.WithInMemory(true)
	}

	memTableSize := int64(16 << 20)
	if cfg.MaxMemoryMB > 0 {
		memTableSize = cfg.MaxMemoryMB << 20 / 3
	}

	opts = opts.
		WithLogger(badgerLogger{}).
		WithCompression(options.Snappy).
		WithNumVersionsToKeep(1).
		WithMemTableSize(memTableSize).
		WithNumMemtables(3).
		WithBlockCacheSize(memTableSize / 2).
		WithIndexCacheSize(memTableSize / 4).
		WithMaxLevels(4).
		WithNumLevelZeroTables(2).
		WithNumLevelZeroTablesStall(4).
		WithValueThreshold(1024).
		WithNumCompactors(2).
		WithValueLogFileSize(64 << 20)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("打开归档失败: %w", err)
	}
	return &Archive{db: db}, nil
}

// Close 关闭数据库
func (a *Archive) Close() error {
	return a.db.Close()
}

// RunGC 回收值日志空间
func (a *Archive) RunGC(discardRatio float64) error {
	return a.db.RunValueLogGC(discardRatio)
}

func hostHash(host string) uint64 {
	return xxhash.Sum64String(host)
}

func hostKey(host string) []byte {
	key := make([]byte, 9)
	key[0] = prefixHost
	binary.BigEndian.PutUint64(key[1:], hostHash(host))
	return key
}

// levelPrefix 某目标某层的键前缀
func levelPrefix(host string, level int) []byte {
	p := make([]byte, 10)
	p[0] = prefixFrame
	binary.BigEndian.PutUint64(p[1:9], hostHash(host))
	p[9] = byte(level)
	return p
}

func frameKey(host string, level int, t time.Time) []byte {
	key := make([]byte, frameKeyLen)
	copy(key, levelPrefix(host, level))
	binary.BigEndian.PutUint64(key[10:], uint64(t.UnixMilli()))
	return key
}

func keyTime(key []byte) time.Time {
	return time.UnixMilli(int64(binary.BigEndian.Uint64(key[10:]))).UTC()
}

// levelIndex 把步长换算为层号，步长必须是2的幂
func levelIndex(step int) (int, error) {
	if step < 1 || step&(step-1) != 0 {
		return 0, fmt.Errorf("层步长必须是2的幂: %d", step)
	}
	i := 0
	for s := step; s > 1; s >>= 1 {
		i++
	}
	if i > aggregate.MaxLevels {
		return 0, fmt.Errorf("层步长过大: %d", step)
	}
	return i, nil
}

// Put 写入一个目标的金字塔，同一时间戳的帧被覆盖
// 返回写入的帧数
func (a *Archive) Put(host string, levels []aggregate.Level) (int, error) {
	wb := a.db.NewWriteBatch()
	defer wb.Cancel()

	if err := wb.Set(hostKey(host), []byte(host)); err != nil {
		return 0, err
	}
	n := 0
	for _, l := range levels {
		idx, err := levelIndex(l.Step)
		if err != nil {
			return n, err
		}
		for _, f := range l.Frames {
			if f.Time.UnixMilli() < 0 {
				continue
			}
			val, err := framedataq.MarshalFrame(f)
			if err != nil {
				return n, fmt.Errorf("编码帧 %v: %w", f.Time, err)
			}
			if err := wb.Set(frameKey(host, idx, f.Time), val); err != nil {
				return n, err
			}
			n++
		}
	}
	if err := wb.Flush(); err != nil {
		return n, fmt.Errorf("写入归档失败: %w", err)
	}
	metrics.FramesWritten.WithLabelValues("archive").Add(float64(n))
	logging.Logger.WithField("host", host).WithField("frames", n).Debug("写入归档")
	return n, nil
}

// Index 为原始帧构建金字塔并写入
func (a *Archive) Index(host string, frames []framedataq.Frame, minItems int) (int, error) {
	return a.Put(host, aggregate.Pyramid(frames, minItems))
}

// Hosts 返回已归档的目标，按名称排序
func (a *Archive) Hosts() ([]string, error) {
	var hosts []string
	err := a.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: []byte{prefixHost}, PrefetchValues: true, PrefetchSize: 16})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			v, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			hosts = append(hosts, string(v))
		}
		return nil
	})
	sort.Strings(hosts)
	return hosts, err
}

func (a *Archive) known(txn *badger.Txn, host string) error {
	_, err := txn.Get(hostKey(host))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return fmt.Errorf("%s: %w", host, ErrUnknownHost)
	}
	return err
}

// Range 读取某层在 [start, end) 内的帧，零值表示不限
func (a *Archive) Range(host string, step int, start, end time.Time) (aggregate.Level, error) {
	idx, err := levelIndex(step)
	if err != nil {
		return aggregate.Level{}, err
	}
	level := aggregate.Level{Step: step}
	err = a.db.View(func(txn *badger.Txn) error {
		if err := a.known(txn, host); err != nil {
			return err
		}
		prefix := levelPrefix(host, idx)
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix, PrefetchValues: true, PrefetchSize: 100})
		defer it.Close()

		seek := prefix
		if !start.IsZero() {
			seek = frameKey(host, idx, start)
		}
		for it.Seek(seek); it.Valid(); it.Next() {
			item := it.Item()
			if !end.IsZero() && !keyTime(item.Key()).Before(end) {
				break
			}
			err := item.Value(func(val []byte) error {
				f, err := framedataq.UnmarshalFrame(val)
				if err != nil {
					return err
				}
				level.Frames = append(level.Frames, f)
				return nil
			})
			if err != nil {
				return fmt.Errorf("读取 %s 的帧: %w", host, err)
			}
		}
		return nil
	})
	return level, err
}

// Count 统计某层在 [start, end) 内的帧数，不读取值
func (a *Archive) Count(host string, step int, start, end time.Time) (int, error) {
	idx, err := levelIndex(step)
	if err != nil {
		return 0, err
	}
	n := 0
	err = a.db.View(func(txn *badger.Txn) error {
		prefix := levelPrefix(host, idx)
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix})
		defer it.Close()

		seek := prefix
		if !start.IsZero() {
			seek = frameKey(host, idx, start)
		}
		for it.Seek(seek); it.Valid(); it.Next() {
			if !end.IsZero() && !keyTime(it.Item().Key()).Before(end) {
				break
			}
			n++
		}
		return nil
	})
	return n, err
}

// Steps 返回某目标已存的层步长，由细到粗
func (a *Archive) Steps(host string) ([]int, error) {
	var steps []int
	err := a.db.View(func(txn *badger.Txn) error {
		if err := a.known(txn, host); err != nil {
			return err
		}
		for i := 0; i <= aggregate.MaxLevels; i++ {
			prefix := levelPrefix(host, i)
			it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix})
			it.Rewind()
			ok := it.Valid() && bytes.HasPrefix(it.Item().Key(), prefix)
			it.Close()
			if ok {
				steps = append(steps, 1<<i)
			}
		}
		return nil
	})
	return steps, err
}

// ForWidth 返回 [start, end) 内帧数不超过 width 的最精细一层
// 都超过时返回最粗的一层
func (a *Archive) ForWidth(host string, start, end time.Time, width int) (aggregate.Level, error) {
	steps, err := a.Steps(host)
	if err != nil {
		return aggregate.Level{}, err
	}
	if len(steps) == 0 {
		return aggregate.Level{Step: 1}, nil
	}
	pick := steps[len(steps)-1]
	for _, s := range steps {
		n, err := a.Count(host, s, start, end)
		if err != nil {
			return aggregate.Level{}, err
		}
		if n <= width {
			pick = s
			break
		}
	}
	return a.Range(host, pick, start, end)
}

// badgerLogger 把BadgerDB的日志转到全局日志器
type badgerLogger struct{}

func (badgerLogger) Errorf(format string, args ...interface{}) {
	logging.Logger.Errorf("badger: "+format, args...)
}

func (badgerLogger) Warningf(format string, args ...interface{}) {
	logging.Logger.Warnf("badger: "+format, args...)
}

func (badgerLogger) Infof(format string, args ...interface{}) {
	logging.Logger.Debugf("badger: "+format, args...)
}

func (badgerLogger) Debugf(format string, args ...interface{}) {
	logging.Logger.Debugf("badger: "+format, args...)
}
