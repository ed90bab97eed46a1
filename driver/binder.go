package driver

// Binder 在执行时提供按引用绑定参数的当前值
type Binder interface {
	BoundValue() (any, error)
}

// BinderFunc 函数形式的 Binder
type BinderFunc func() (any, error)

// BoundValue 实现 Binder
func (f BinderFunc) BoundValue() (any, error) { return f() }

// Target 暴露绑定目标指针，供输出参数使用
type Target interface {
	Target() any
}

// Ref 绑定调用方持有的变量，执行时读取 *p 的当前值
func Ref[T any](p *T) Binder {
	return ref[T]{p: p}
}

type ref[T any] struct {
	p *T
}

func (r ref[T]) BoundValue() (any, error) {
	if r.p == nil {
		return nil, nil
	}
	return *r.p, nil
}

func (r ref[T]) Target() any { return r.p }
