package logging

import "fmt"

// KVLogger is the key-value logging shape used by the intelligence layer,
// where components log with alternating key and value arguments.
type KVLogger struct {
	l Logger
}

// NewKVAdapter adapts a Logger to the key-value calling convention.
func NewKVAdapter(l Logger) *KVLogger {
	if l == nil {
		l = NewNopLogger()
	}
	return &KVLogger{l: l}
}

func (k *KVLogger) Debug(msg string, keysAndValues ...interface{}) {
	k.l.Debug(msg, kvToFields(keysAndValues)...)
}

func (k *KVLogger) Info(msg string, keysAndValues ...interface{}) {
	k.l.Info(msg, kvToFields(keysAndValues)...)
}

func (k *KVLogger) Warn(msg string, keysAndValues ...interface{}) {
	k.l.Warn(msg, kvToFields(keysAndValues)...)
}

func (k *KVLogger) Error(msg string, keysAndValues ...interface{}) {
	k.l.Error(msg, kvToFields(keysAndValues)...)
}

// kvToFields pairs up arguments. A non-string key is formatted with %v and a
// trailing key without value is logged under "!BADKEY".
func kvToFields(kv []interface{}) []Field {
	fields := make([]Field, 0, (len(kv)+1)/2)
	for i := 0; i < len(kv); i += 2 {
		if i+1 >= len(kv) {
			fields = append(fields, Any("!BADKEY", kv[i]))
			break
		}
		key, ok := kv[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kv[i])
		}
		if err, isErr := kv[i+1].(error); isErr {
			fields = append(fields, Field{Key: key, Value: err.Error()})
			continue
		}
		fields = append(fields, Any(key, kv[i+1]))
	}
	return fields
}

//Personal.AI order the ending
