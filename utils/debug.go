package utils

import (
	"fmt"
	"log"
	"os"
)

// DebugEnabled toggles Debugf output. main sets it from Config.Debug.
var DebugEnabled = false

var warnLog = log.New(os.Stderr, "warn: ", log.LstdFlags)

// Debugf prints a debug line when DebugEnabled is set.
func Debugf(format string, args ...any) {
	if !DebugEnabled {
		return
	}
	fmt.Printf("[debug] "+format+"\n", args...)
}

// Warnf reports a recoverable problem (skipped example, dropped update).
func Warnf(format string, args ...any) {
	warnLog.Printf(format, args...)
}
