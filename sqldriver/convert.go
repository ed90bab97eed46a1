package sqldriver

import (
	"database/sql"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"

	"github.com/BaSui01/sessiondb/driver"
)

// toDuration 超时属性：整数按秒，也接受 time.Duration 与可解析的字符串
func toDuration(v any) (time.Duration, error) {
	switch x := v.(type) {
	case time.Duration:
		return x, nil
	case int:
		return time.Duration(x) * time.Second, nil
	case int64:
		return time.Duration(x) * time.Second, nil
	case float64:
		return time.Duration(x * float64(time.Second)), nil
	case string:
		if d, err := time.ParseDuration(x); err == nil {
			return d, nil
		}
		n, err := strconv.Atoi(x)
		if err != nil {
			return 0, fmt.Errorf("invalid timeout %q", x)
		}
		return time.Duration(n) * time.Second, nil
	default:
		return 0, fmt.Errorf("invalid timeout type %T", v)
	}
}

func toFetchMode(v any) (driver.FetchMode, error) {
	switch x := v.(type) {
	case driver.FetchMode:
		return x, nil
	case *driver.FetchMode:
		if x == nil {
			return driver.FetchMode{}, nil
		}
		return *x, nil
	case driver.FetchKind:
		return driver.FetchMode{Kind: x}, nil
	default:
		return driver.FetchMode{}, fmt.Errorf("%w: fetch mode expects driver.FetchMode, got %T", driver.ErrUnsupportedAttribute, v)
	}
}

// coerce 按声明的参数类型转换绑定值
func coerce(v any, t driver.ParamType) (any, error) {
	if v == nil || t == driver.ParamAuto {
		return v, nil
	}
	switch t {
	case driver.ParamNull:
		return nil, nil
	case driver.ParamStr:
		switch x := v.(type) {
		case string:
			return x, nil
		case []byte:
			return string(x), nil
		default:
			return fmt.Sprint(x), nil
		}
	case driver.ParamLOB:
		switch x := v.(type) {
		case []byte:
			return x, nil
		case string:
			return []byte(x), nil
		default:
			return []byte(fmt.Sprint(x)), nil
		}
	case driver.ParamInt:
		var n int64
		if err := mapstructure.WeakDecode(trimText(v), &n); err != nil {
			return nil, fmt.Errorf("%w: cannot bind %#v as int", driver.ErrInvalidParam, v)
		}
		return n, nil
	case driver.ParamBool:
		var b bool
		if err := mapstructure.WeakDecode(trimText(v), &b); err != nil {
			return nil, fmt.Errorf("%w: cannot bind %#v as bool", driver.ErrInvalidParam, v)
		}
		return b, nil
	case driver.ParamFloat:
		var f float64
		if err := mapstructure.WeakDecode(trimText(v), &f); err != nil {
			return nil, fmt.Errorf("%w: cannot bind %#v as float", driver.ErrInvalidParam, v)
		}
		return f, nil
	}
	return v, nil
}

// trimText 数值与布尔参数忽略文本两侧空白
func trimText(v any) any {
	if str, ok := v.(string); ok {
		return strings.TrimSpace(str)
	}
	return v
}

var scannerType = reflect.TypeOf((*sql.Scanner)(nil)).Elem()

// scannerHook 目标实现 sql.Scanner 时（sql.NullString 等）交给 Scan 处理
func scannerHook(from, to reflect.Type, data any) (any, error) {
	if from == to || !reflect.PointerTo(to).Implements(scannerType) {
		return data, nil
	}
	target := reflect.New(to)
	if err := target.Interface().(sql.Scanner).Scan(data); err != nil {
		return nil, err
	}
	return target.Elem().Interface(), nil
}

// decodeValue 以弱类型方式把结果值写入 dest；NULL 把目标置零
func decodeValue(dest, input any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       scannerHook,
		WeaklyTypedInput: true,
		ZeroFields:       true,
		TagName:          "db",
		Result:           dest,
	})
	if err != nil {
		return fmt.Errorf("sqldriver: %w", err)
	}
	if err := dec.Decode(input); err != nil {
		return fmt.Errorf("sqldriver: %w", err)
	}
	return nil
}

// assignValue 把扫描得到的值写入调用方的指针
func assignValue(dest, v any) error {
	return decodeValue(dest, v)
}

// scanInto 把一行写入结构体（按 db 标签或不区分大小写的字段名）或 map
func scanInto(dest any, row driver.Row) error {
	if m, ok := dest.(*map[string]any); ok {
		*m = row.Map()
		return nil
	}

	rv := reflect.ValueOf(dest)
	if rv.Kind() != reflect.Ptr || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("sqldriver: fetch target must be a pointer to struct, got %T", dest)
	}
	return decodeValue(dest, row.Map())
}
