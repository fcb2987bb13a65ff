package xerr

import (
	"errors"
	"fmt"
)

// 错误码定义
const (
	OK                 = 200
	RequestParamsError = 400
	RecordNotFound     = 404
	ServerCommonError  = 500
	DbError            = 501
	OracleError        = 502
	ChainRpcError      = 503
)

var errMsgs = map[int]string{
	ServerCommonError:  "服务器开小差了",
	RequestParamsError: "参数错误",
	RecordNotFound:     "记录不存在",
	DbError:            "数据库繁忙",
	OracleError:        "行情服务不可用",
	ChainRpcError:      "链上节点不可用",
}

type CodeError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

func (e *CodeError) Error() string {
	return fmt.Sprintf("ErrCode:%d, Msg:%s", e.Code, e.Msg)
}

func New(code int, msg string) error {
	return &CodeError{Code: code, Msg: msg}
}

func NewErrCode(code int) error {
	return &CodeError{Code: code, Msg: MapErrMsg(code)}
}

func MapErrMsg(code int) string {
	if msg, ok := errMsgs[code]; ok {
		return msg
	}
	return "未知错误"
}

// IsCode 判断错误链里是否带着指定错误码
func IsCode(err error, code int) bool {
	var ce *CodeError
	if errors.As(err, &ce) {
		return ce.Code == code
	}
	return false
}
