package causelog

import (
	"fmt"
	"runtime"
	"strings"
	"sync"
)

// TracebackType is the message type of traceback messages.
const TracebackType = "causelog:traceback"

// FrameExtractor turns an error into printable stack frame descriptions.
type FrameExtractor interface {
	Frames(err error) []string
}

// FrameExtractorFunc adapts a function to FrameExtractor.
type FrameExtractorFunc func(err error) []string

// Frames calls f(err).
func (f FrameExtractorFunc) Frames(err error) []string {
	return f(err)
}

// framer is implemented by errors that carry their own stack.
type framer interface {
	Frames() []string
}

// CallerFrames is the default FrameExtractor. Errors exposing
// Frames() []string supply their own frames; otherwise the stack of the
// goroutine writing the traceback is captured, skipping this package.
var CallerFrames FrameExtractor = FrameExtractorFunc(callerFrames)

func callerFrames(err error) []string {
	if f, ok := err.(framer); ok {
		return f.Frames()
	}

	pcs := make([]uintptr, 64)
	n := runtime.Callers(2, pcs)
	frames := runtime.CallersFrames(pcs[:n])

	var out []string
	for {
		frame, more := frames.Next()
		if !strings.HasPrefix(frame.Function, packagePath+".") {
			out = append(out, fmt.Sprintf("%s\n\t%s:%d", frame.Function, frame.File, frame.Line))
		}
		if !more {
			break
		}
	}
	return out
}

const packagePath = "github.com/roach88/causelog"

var (
	frameMu        sync.RWMutex
	frameExtractor = CallerFrames
)

// SwapFrameExtractor replaces the extractor used by WriteTraceback.
func SwapFrameExtractor(fe FrameExtractor) (restore func()) {
	frameMu.Lock()
	prev := frameExtractor
	frameExtractor = fe
	frameMu.Unlock()
	return func() {
		frameMu.Lock()
		frameExtractor = prev
		frameMu.Unlock()
	}
}

func currentFrameExtractor() FrameExtractor {
	frameMu.RLock()
	defer frameMu.RUnlock()
	return frameExtractor
}

// tracebackMessage keeps the raw error in the reason and exception fields
// until the logger serializes it, so a MemoryLogger can match tracebacks by
// error type. Registered error extractors may add fields of their own.
var tracebackMessage = newMessageType(TracebackType, []BoundField{
	Bind(ReasonField, NewField(func(v any) (any, error) {
		if err, ok := v.(error); ok {
			return err.Error(), nil
		}
		return fmt.Sprint(v), nil
	}, nil), "The error's message."),
	Bind("traceback", NewField(func(v any) (any, error) {
		switch frames := v.(type) {
		case []string:
			return strings.Join(frames, "\n"), nil
		case string:
			return frames, nil
		}
		return nil, fmt.Errorf("traceback must be frames, got %T", v)
	}, nil), "The stack frames."),
	Bind(ExceptionField, NewField(func(v any) (any, error) {
		if err, ok := v.(error); ok {
			return ErrorKind(err), nil
		}
		return fmt.Sprintf("%T", v), nil
	}, nil), "The error's type."),
}, "An unexpected error indicating a bug.", true)

// TracebackSerializer returns the serializer of traceback messages.
func TracebackSerializer() *MessageSerializer {
	return tracebackMessage.Serializer()
}

// WriteTraceback logs err as a traceback message under the current action.
func WriteTraceback(logger Logger, err error) {
	if err == nil {
		return
	}
	msg := tracebackMessage.New(Fields{
		ReasonField:    err,
		ExceptionField: err,
		"traceback":    currentFrameExtractor().Frames(err),
	})
	extra := Fields{}
	for k, v := range fieldsForError(err) {
		if _, taken := msg.contents[k]; !taken {
			extra[k] = v
		}
	}
	msg.Bind(extra).Write(logger, nil)
}
