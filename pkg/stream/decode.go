// Package stream keeps a live WebSocket session to the device's console and
// turns each text frame into a LogRecord.
package stream

import (
	"fmt"

	"github.com/m8test/m8link/pkg/common"
	"github.com/m8test/m8link/pkg/errors"
	"github.com/valyala/fastjson"
)

var parserPool fastjson.ParserPool

// DecodeRecord parses one console frame. id, level and message are
// required; tag and time default to empty. Any other shape is a protocol error.
func DecodeRecord(frame []byte) (common.LogRecord, error) {
	p := parserPool.Get()
	defer parserPool.Put(p)

	v, err := p.ParseBytes(frame)
	if err != nil {
		return common.LogRecord{}, errors.NewProtocolError("malformed frame", err, preview(frame))
	}
	if v.Type() != fastjson.TypeObject {
		return common.LogRecord{}, errors.NewProtocolError(
			fmt.Sprintf("frame is a %s, not an object", v.Type()), nil, preview(frame))
	}

	idVal := v.Get("id")
	if idVal == nil {
		return common.LogRecord{}, errors.NewProtocolError("frame missing id", nil, preview(frame))
	}
	id, err := idVal.Int64()
	if err != nil {
		return common.LogRecord{}, errors.NewProtocolError("frame id is not an integer", err, preview(frame))
	}

	level, err := requiredString(v, "level")
	if err != nil {
		return common.LogRecord{}, errors.NewProtocolError(err.Error(), nil, preview(frame))
	}
	message, err := requiredString(v, "message")
	if err != nil {
		return common.LogRecord{}, errors.NewProtocolError(err.Error(), nil, preview(frame))
	}
	tag, err := optionalString(v, "tag")
	if err != nil {
		return common.LogRecord{}, errors.NewProtocolError(err.Error(), nil, preview(frame))
	}
	ts, err := optionalString(v, "time")
	if err != nil {
		return common.LogRecord{}, errors.NewProtocolError(err.Error(), nil, preview(frame))
	}

	return common.NewLogRecord(id, level, tag, message, ts), nil
}

func requiredString(v *fastjson.Value, key string) (string, error) {
	f := v.Get(key)
	if f == nil {
		return "", fmt.Errorf("frame missing %s", key)
	}
	b, err := f.StringBytes()
	if err != nil {
		return "", fmt.Errorf("frame %s is not a string", key)
	}
	return string(b), nil
}

func optionalString(v *fastjson.Value, key string) (string, error) {
	f := v.Get(key)
	if f == nil || f.Type() == fastjson.TypeNull {
		return "", nil
	}
	b, err := f.StringBytes()
	if err != nil {
		return "", fmt.Errorf("frame %s is not a string", key)
	}
	return string(b), nil
}

func preview(frame []byte) string {
	const max = 96
	if len(frame) <= max {
		return string(frame)
	}
	return string(frame[:max]) + "..."
}
