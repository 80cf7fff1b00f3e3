package metrics

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nci/eoselect/utils"
)

type Logger interface {
	Log(info *MetricsInfo)
}

// ZapLogger writes each record as one JSON line through the process logger.
type ZapLogger struct {
	logger *zap.SugaredLogger
}

func NewZapLogger(logger *zap.SugaredLogger) *ZapLogger {
	return &ZapLogger{logger: logger}
}

func (l *ZapLogger) Log(info *MetricsInfo) {
	infoStr, err := info.ToJSON(l.logger)
	if err != nil {
		l.logger.Errorw("metrics record", utils.FieldError, err)
		return
	}
	l.logger.Info(strings.TrimSpace(infoStr))
}

const defaultQueueSize = 2000
const defaultLogWriters = 2

// FileLogger appends records to log<N> files under LogDir, one per writer
// goroutine, rotating them into log<N>.<i> once they reach MaxLogFileSize.
// At most MaxLogFiles rotated files are kept per writer; the oldest is
// overwritten.
type FileLogger struct {
	MetricsQueue   chan *MetricsInfo
	LogDir         string
	MaxLogFileSize int64
	MaxLogFiles    int

	logger *zap.SugaredLogger
	wg     sync.WaitGroup
	once   sync.Once
}

func NewFileLogger(logDir string, maxLogFileSize int64, maxLogFiles int, logger *zap.SugaredLogger) *FileLogger {
	if maxLogFileSize <= 0 {
		maxLogFileSize = utils.DefaultMaxLogFileSize
	}
	if maxLogFiles <= 0 {
		maxLogFiles = utils.DefaultMaxLogFiles
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	l := &FileLogger{
		MetricsQueue:   make(chan *MetricsInfo, defaultQueueSize),
		LogDir:         logDir,
		MaxLogFileSize: maxLogFileSize,
		MaxLogFiles:    maxLogFiles,
		logger:         logger,
	}

	l.wg.Add(defaultLogWriters)
	for i := 0; i < defaultLogWriters; i++ {
		go l.startLogWriter(i)
	}
	return l
}

func (l *FileLogger) Log(info *MetricsInfo) {
	l.MetricsQueue <- info
}

// Close drains the queue and waits for the writers. Log must not be called
// afterwards.
func (l *FileLogger) Close() {
	l.once.Do(func() {
		close(l.MetricsQueue)
		l.wg.Wait()
	})
}

func (l *FileLogger) startLogWriter(idx int) {
	defer l.wg.Done()
	log := l.logger.With("writer", idx)

	f, err := l.openLogFile(idx)
	if err != nil {
		log.Errorw("opening metrics log", utils.FieldError, err)
	}
	defer func() {
		if f != nil {
			f.Close()
		}
	}()

	for info := range l.MetricsQueue {
		infoStr, err := info.ToJSON(log)
		if err != nil {
			log.Errorw("encoding metrics record", utils.FieldError, err)
			continue
		}
		if f == nil {
			if f, err = l.openLogFile(idx); err != nil {
				continue
			}
		}
		if f, err = l.tryRotateLogFile(f, idx); err != nil {
			continue
		}
		if _, err := f.WriteString(infoStr); err != nil {
			log.Errorw("writing metrics log", utils.FieldError, err)
			continue
		}
		f.Sync()
	}
}

func (l *FileLogger) logFilePath(idx int) string {
	return path.Join(l.LogDir, fmt.Sprintf("log%d", idx))
}

func (l *FileLogger) openLogFile(idx int) (*os.File, error) {
	return os.OpenFile(l.logFilePath(idx), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
}

func (l *FileLogger) tryRotateLogFile(currFile *os.File, idx int) (*os.File, error) {
	log := l.logger.With("writer", idx)
	info, err := currFile.Stat()
	if err != nil {
		log.Errorw("log rotation", utils.FieldError, err)
		return currFile, nil
	}
	if info.Size() < l.MaxLogFileSize {
		return currFile, nil
	}

	var rotated string
	for i := 0; i < l.MaxLogFiles; i++ {
		candidate := path.Join(l.LogDir, fmt.Sprintf("log%d.%d", idx, i))
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			rotated = candidate
			break
		}
	}

	if rotated == "" {
		rotated, err = l.oldestRotated(idx)
		if err != nil {
			log.Errorw("log rotation", utils.FieldError, err)
			return currFile, nil
		}
		log.Debugw("maximum number of log files reached, overwriting", utils.FieldPath, rotated)
		if err := os.Remove(rotated); err != nil {
			log.Errorw("log rotation", utils.FieldError, err)
			return currFile, nil
		}
	}

	currFile.Close()
	if err := os.Rename(l.logFilePath(idx), rotated); err != nil {
		log.Errorw("log rotation", utils.FieldError, err)
	} else {
		log.Debugw("log file rotated", utils.FieldPath, rotated)
	}

	f, err := l.openLogFile(idx)
	if err != nil {
		log.Errorw("log rotation", utils.FieldError, err)
		return nil, err
	}
	return f, nil
}

// oldestRotated returns the least recently written log<idx>.<i> file.
func (l *FileLogger) oldestRotated(idx int) (string, error) {
	entries, err := os.ReadDir(l.LogDir)
	if err != nil {
		return "", err
	}

	prefix := fmt.Sprintf("log%d.", idx)
	var oldest string
	oldestTime := time.Now()
	for _, entry := range entries {
		if !entry.Type().IsRegular() || !strings.HasPrefix(entry.Name(), prefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(oldestTime) {
			oldest = entry.Name()
			oldestTime = info.ModTime()
		}
	}
	if oldest == "" {
		return path.Join(l.LogDir, fmt.Sprintf("log%d.%d", idx, 0)), nil
	}
	return filepath.Join(l.LogDir, oldest), nil
}
