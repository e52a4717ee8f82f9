package matching

import "clobex.com/pkg/xerr"

// 撮合核心的错误码段 6000+，和链上程序的自定义错误保持同一区间
var (
	// Capacity
	ErrOrderbookFull = xerr.Define(xerr.KindCapacity, 6000, "orderbook is full")
	ErrNoSpace       = xerr.Define(xerr.KindCapacity, 6001, "no free slot in slab")
	ErrOrderFull     = xerr.Define(xerr.KindCapacity, 6002, "open orders limit reached")
	ErrQueueFull     = xerr.Define(xerr.KindCapacity, 6003, "event queue full, evicted event cannot be settled")

	// Validation
	ErrInvalidQty           = xerr.Define(xerr.KindValidation, 6010, "invalid quantity")
	ErrInvalidPrice         = xerr.Define(xerr.KindValidation, 6011, "invalid price")
	ErrDuplicateOrderID     = xerr.Define(xerr.KindValidation, 6012, "duplicate order id")
	ErrInvalidMarketAccount = xerr.Define(xerr.KindValidation, 6013, "invalid market account")
	ErrPriceIsTooLow        = xerr.Define(xerr.KindValidation, 6014, "price is too low")
	ErrInvalidSide          = xerr.Define(xerr.KindValidation, 6015, "invalid side")
	ErrInvalidOrderType     = xerr.Define(xerr.KindValidation, 6016, "invalid order type")

	// Arithmetic
	ErrOverflow        = xerr.Define(xerr.KindArithmetic, 6020, "arithmetic overflow")
	ErrUnderflow       = xerr.Define(xerr.KindArithmetic, 6021, "arithmetic underflow")
	ErrMathOverflow    = xerr.Define(xerr.KindArithmetic, 6022, "math overflow")
	ErrOrderIDOverflow = xerr.Define(xerr.KindArithmetic, 6023, "order id overflow")
	ErrOrderOverflow   = xerr.Define(xerr.KindArithmetic, 6024, "open orders counter overflow")

	// NotFound
	ErrOrderNotFound = xerr.Define(xerr.KindNotFound, 6030, "order not found")

	// Authorization
	ErrUnauthorized = xerr.Define(xerr.KindAuthorization, 6040, "unauthorized")

	// Policy
	ErrWouldMatchImmediately = xerr.Define(xerr.KindPolicy, 6050, "post-only order would match immediately")
	ErrMarketNotActive       = xerr.Define(xerr.KindPolicy, 6051, "market is not active")
	ErrMarketOrderSize       = xerr.Define(xerr.KindPolicy, 6052, "order size below market minimum")
)
