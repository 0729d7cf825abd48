package basis

import (
	"fmt"
	"strconv"
	"strings"
)

// DisplayPrecision is the number of decimals coefficients are rounded to when printed.
const DisplayPrecision = 4

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', DisplayPrecision, 64)
}

// String renders the decoded equation in terms of x.
func (f Function) String() string {
	return f.Format("x")
}

// Format renders the decoded equation with v as the input symbol.
func (f Function) Format(v string) string {
	c := f.Coefficients
	terms := make([]string, 0, 12)

	terms = append(terms, fmt.Sprintf("%s*%s^5 + %s*%s^4 + %s*%s^3 + %s*%s^2 + %s*%s + %s",
		num(c.Poly[0]), v, num(c.Poly[1]), v, num(c.Poly[2]), v, num(c.Poly[3]), v, num(c.Poly[4]), v, num(c.Poly[5])))

	terms = append(terms, fmt.Sprintf("%s/(%s + %s)", num(c.Reciprocal.Num), v, num(c.Reciprocal.Offset)))

	terms = append(terms, fmt.Sprintf("(%s)/(%s)", cubic(c.Rational.Num, v), cubic(c.Rational.Den, v)))

	terms = append(terms,
		fmt.Sprintf("%s*log_%s(%s)", num(c.Log.Coeff), num(abs(c.Log.Base)), v),
		fmt.Sprintf("%s*%s*log_%s(%s)", num(c.XLog.Coeff), v, num(abs(c.XLog.Base)), v))

	for _, s := range c.Sines {
		terms = append(terms, fmt.Sprintf("%s*sin(%s*%s + %s)", num(s.Amplitude), num(s.Frequency), v, num(s.Phase)))
	}

	terms = append(terms,
		fmt.Sprintf("%s*(%s)^%s", num(c.Exp.Coeff), num(c.Exp.Base), v),
		fmt.Sprintf("%s*%s*(%s)^%s", num(c.XExp.Coeff), v, num(c.XExp.Base), v))

	return strings.Join(terms, " + ")
}

func cubic(p [4]float64, v string) string {
	return fmt.Sprintf("%s*%s^3 + %s*%s^2 + %s*%s + %s", num(p[0]), v, num(p[1]), v, num(p[2]), v, num(p[3]))
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
