package matching

import "math/bits"

// 所有数量/价格运算都走这里，溢出直接报错，不允许回绕

func checkedAdd(a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, ErrOverflow
	}
	return sum, nil
}

func checkedSub(a, b uint64) (uint64, error) {
	diff, borrow := bits.Sub64(a, b, 0)
	if borrow != 0 {
		return 0, ErrUnderflow
	}
	return diff, nil
}

func checkedMul(a, b uint64) (uint64, error) {
	hi, lo := bits.Mul64(a, b)
	if hi != 0 {
		return 0, ErrMathOverflow
	}
	return lo, nil
}

// CheckedAdd / CheckedSub / CheckedMul 给 market 层算金额用
func CheckedAdd(a, b uint64) (uint64, error) { return checkedAdd(a, b) }
func CheckedSub(a, b uint64) (uint64, error) { return checkedSub(a, b) }
func CheckedMul(a, b uint64) (uint64, error) { return checkedMul(a, b) }

// MulDiv 计算 floor(a*b/d)，中间结果用 128 位，商溢出报 ErrMathOverflow
func MulDiv(a, b, d uint64) (uint64, error) {
	if d == 0 {
		return 0, ErrMathOverflow
	}
	hi, lo := bits.Mul64(a, b)
	if hi >= d {
		return 0, ErrMathOverflow
	}
	q, _ := bits.Div64(hi, lo, d)
	return q, nil
}
