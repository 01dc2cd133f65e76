package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// LogLevel определяет уровни логирования
type LogLevel int

const (
	TRACE LogLevel = iota
	DEBUG
	INFO
	WARN
	ERROR
)

// String возвращает строковое представление уровня логирования
func (l LogLevel) String() string {
	switch l {
	case TRACE:
		return "TRACE"
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel разбирает имя уровня ("debug", "WARN" ...). Неизвестное имя даёт INFO.
func ParseLevel(name string) LogLevel {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "TRACE":
		return TRACE
	case "DEBUG":
		return DEBUG
	case "WARN", "WARNING":
		return WARN
	case "ERROR":
		return ERROR
	default:
		return INFO
	}
}

// Logger представляет логгер компонента: консоль + необязательный файл
type Logger struct {
	mu              sync.Mutex
	component       string
	consoleLogger   *log.Logger
	fileLogger      *log.Logger
	file            *os.File
	minConsoleLevel LogLevel
	minFileLevel    LogLevel
}

var (
	// logDir задаёт каталог для файловых логов. Пустая строка: только консоль.
	logDir   string
	logDirMu sync.RWMutex

	defaultConsoleLevel = INFO

	defaultLogger = &Logger{
		component:       "default",
		consoleLogger:   log.New(os.Stdout, "", log.LstdFlags),
		minConsoleLevel: INFO,
		minFileLevel:    DEBUG,
	}
)

// SetLogDir включает запись логов в файлы в указанном каталоге.
// Влияет только на логгеры, созданные после вызова.
func SetLogDir(dir string) {
	logDirMu.Lock()
	defer logDirMu.Unlock()
	logDir = dir
}

// SetConsoleLevel задаёт минимальный уровень консольного вывода для новых логгеров
// и для логгера по умолчанию.
func SetConsoleLevel(level LogLevel) {
	logDirMu.Lock()
	defaultConsoleLevel = level
	logDirMu.Unlock()

	defaultLogger.mu.Lock()
	defaultLogger.minConsoleLevel = level
	defaultLogger.mu.Unlock()
}

// NewLogger создаёт логгер для компонента. Если задан каталог логов,
// дополнительно открывается файл <dir>/<component>_<timestamp>.log.
func NewLogger(component string) (*Logger, error) {
	logDirMu.RLock()
	dir := logDir
	consoleLevel := defaultConsoleLevel
	logDirMu.RUnlock()

	l := &Logger{
		component:       component,
		consoleLogger:   log.New(os.Stdout, "", log.LstdFlags),
		minConsoleLevel: consoleLevel,
		minFileLevel:    DEBUG,
	}

	if dir == "" {
		return l, nil
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("ошибка создания директории %s: %w", dir, err)
	}

	timestamp := time.Now().Format("2006-01-02_15-04-05")
	filename := filepath.Join(dir, fmt.Sprintf("%s_%s.log", component, timestamp))

	file, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания файла логов: %w", err)
	}

	l.file = file
	l.fileLogger = log.New(file, "", log.LstdFlags)
	return l, nil
}

// NewWriterLogger создаёт логгер, который пишет все сообщения не ниже level в w.
// Используется в тестах для перехвата вывода.
func NewWriterLogger(component string, w io.Writer, level LogLevel) *Logger {
	return &Logger{
		component:       component,
		consoleLogger:   log.New(w, "", 0),
		minConsoleLevel: level,
		minFileLevel:    ERROR + 1,
	}
}

// Close закрывает файл логов, если он был открыт
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	l.fileLogger = nil
	return err
}

// Component возвращает имя компонента логгера
func (l *Logger) Component() string {
	return l.component
}

func (l *Logger) Trace(format string, args ...interface{}) { l.logf(TRACE, format, args...) }
func (l *Logger) Debug(format string, args ...interface{}) { l.logf(DEBUG, format, args...) }
func (l *Logger) Info(format string, args ...interface{})  { l.logf(INFO, format, args...) }
func (l *Logger) Warn(format string, args ...interface{})  { l.logf(WARN, format, args...) }
func (l *Logger) Error(format string, args ...interface{}) { l.logf(ERROR, format, args...) }

// logf внутренняя функция для логирования
func (l *Logger) logf(level LogLevel, format string, args ...interface{}) {
	if l == nil {
		return
	}

	message := fmt.Sprintf("[%s] [%s] %s", level.String(), l.component, fmt.Sprintf(format, args...))

	l.mu.Lock()
	defer l.mu.Unlock()

	// В файл пишем всё начиная с minFileLevel
	if l.fileLogger != nil && level >= l.minFileLevel {
		l.fileLogger.Println(message)
	}

	// В консоль только начиная с minConsoleLevel
	if l.consoleLogger != nil && level >= l.minConsoleLevel {
		l.consoleLogger.Println(message)
	}
}

// InitDefaultLogger инициализирует логгер по умолчанию для процесса
func InitDefaultLogger(component string) error {
	logger, err := NewLogger(component)
	if err != nil {
		return err
	}
	defaultLogger = logger
	return nil
}

// CloseDefaultLogger закрывает логгер по умолчанию
func CloseDefaultLogger() {
	if defaultLogger != nil {
		defaultLogger.Close()
	}
}

// Trace логирует сообщение уровня TRACE через логгер по умолчанию
func Trace(format string, args ...interface{}) { defaultLogger.logf(TRACE, format, args...) }

// Debug логирует сообщение уровня DEBUG через логгер по умолчанию
func Debug(format string, args ...interface{}) { defaultLogger.logf(DEBUG, format, args...) }

// Info логирует сообщение уровня INFO через логгер по умолчанию
func Info(format string, args ...interface{}) { defaultLogger.logf(INFO, format, args...) }

// Warn логирует сообщение уровня WARN через логгер по умолчанию
func Warn(format string, args ...interface{}) { defaultLogger.logf(WARN, format, args...) }

// Error логирует сообщение уровня ERROR через логгер по умолчанию
func Error(format string, args ...interface{}) { defaultLogger.logf(ERROR, format, args...) }
