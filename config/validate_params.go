package config

// ErrInvalid 用于参数验证错误。
type ErrInvalid string

func (e ErrInvalid) Error() string { return string(e) }

// Is 使 errors.Is(err, ErrInvalid("")) 可匹配任意验证错误。
func (e ErrInvalid) Is(target error) bool {
	_, ok := target.(ErrInvalid)
	return ok
}
