package model

import (
	"database/sql/driver"
	"fmt"
	"strconv"
	"strings"
)

// Decimal 是以文本形式保存的十进制数。
// 存储层要求精确的十进制值：来自模型 JSON 的数值保留其原始 token 文本，
// 本地计算的浮点数经 strconv.FormatFloat 的往返文本进入，
// 绝不做二进制浮点到十进制的直接转换。
type Decimal string

// DecimalFromFloat 通过文本往返将浮点数规范化为精确的十进制表示。
func DecimalFromFloat(f float64) Decimal {
	return Decimal(strconv.FormatFloat(f, 'f', -1, 64))
}

// Float64 返回近似的二进制浮点值，仅用于展示和索引。
func (d Decimal) Float64() float64 {
	f, _ := strconv.ParseFloat(string(d), 64)
	return f
}

// MarshalJSON 输出原始数字 token，保证持久化字段逐字节可重现。
func (d Decimal) MarshalJSON() ([]byte, error) {
	if d == "" {
		return []byte("0"), nil
	}
	return []byte(d), nil
}

// UnmarshalJSON 接受数字或带引号的数字，保留其文本形式。
func (d *Decimal) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "null" || s == "" {
		*d = ""
		return nil
	}
	if _, err := strconv.ParseFloat(s, 64); err != nil {
		return fmt.Errorf("非法的十进制数值: %q", s)
	}
	*d = Decimal(s)
	return nil
}

// Value 实现 driver.Valuer，用于写入 DECIMAL 列。
func (d Decimal) Value() (driver.Value, error) {
	if d == "" {
		return "0", nil
	}
	return string(d), nil
}

// Scan 实现 sql.Scanner。MySQL 的 DECIMAL 列以文本形式返回。
func (d *Decimal) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*d = ""
	case []byte:
		*d = Decimal(v)
	case string:
		*d = Decimal(v)
	case float64:
		*d = DecimalFromFloat(v)
	default:
		return fmt.Errorf("无法将 %T 扫描为 Decimal", src)
	}
	return nil
}
