package errors

import (
	"fmt"
	"sync"
)

// registry 保证错误码唯一，重复注册在包初始化阶段 panic。
var registry = struct {
	sync.RWMutex
	codes map[int]*Errno
}{codes: make(map[int]*Errno)}

// Register 登记错误码并原样返回，便于在 var 块中声明。
func Register(e *Errno) *Errno {
	registry.Lock()
	defer registry.Unlock()

	if prev, ok := registry.codes[e.Code]; ok {
		panic(fmt.Sprintf("errno %d registered twice (%q, %q)", e.Code, prev.MessageEN, e.MessageEN))
	}
	registry.codes[e.Code] = e
	return e
}

// Lookup 按错误码查找已登记的 Errno。
func Lookup(code int) (*Errno, bool) {
	registry.RLock()
	defer registry.RUnlock()
	e, ok := registry.codes[code]
	return e, ok
}
