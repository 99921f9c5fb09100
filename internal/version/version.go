// Package version хранит сведения о сборке, проставляемые через -ldflags.
package version

import "fmt"

// Name — имя сервиса в логах и health-ответах.
const Name = "eshop-basket"

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Info возвращает версию, коммит и дату сборки.
func Info() (v, c, d string) { return version, commit, date }

// GetVersion возвращает версию сборки.
func GetVersion() string { return version }

// GetCommit возвращает хэш коммита сборки.
func GetCommit() string { return commit }

// GetDate возвращает дату сборки.
func GetDate() string { return date }

func String() string {
	v, c, d := Info()
	return fmt.Sprintf("%s version=%s commit=%s date=%s", Name, v, c, d)
}
