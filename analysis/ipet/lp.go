package ipet

import (
	"errors"
	"fmt"
	"strings"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"
)

type relation uint8

const (
	eq relation = iota
	le
)

type constraint struct {
	coef map[int]float64
	rel  relation
	rhs  float64
}

// problem is a maximization over non-negative variables.
type problem struct {
	names []string
	obj   []float64
	rows  []constraint
}

func (p *problem) addVar(name string, cost float64) int {
	p.names = append(p.names, name)
	p.obj = append(p.obj, cost)
	return len(p.obj) - 1
}

func (p *problem) addRow(coef map[int]float64, rel relation, rhs float64) {
	for v, c := range coef {
		if c == 0 {
			delete(coef, v)
		}
	}
	p.rows = append(p.rows, constraint{coef, rel, rhs})
}

var errInfeasible = errors.New("infeasible")

// solve returns the maximal objective value and its assignment. Inequalities
// get a slack column each; the simplex minimizes, so the objective is
// negated.
func (p *problem) solve() (float64, []float64, error) {
	var rows []constraint
	slacks := 0
	for _, r := range p.rows {
		if len(r.coef) == 0 {
			if (r.rel == eq && r.rhs != 0) || (r.rel == le && r.rhs < 0) {
				return 0, nil, errInfeasible
			}
			continue
		}
		if r.rel == le {
			slacks++
		}
		rows = append(rows, r)
	}

	if len(p.obj) == 0 || len(rows) == 0 {
		return 0, nil, errors.New("empty program")
	}
	n := len(p.obj) + slacks
	A := mat.NewDense(len(rows), n, nil)
	b := make([]float64, len(rows))
	slack := len(p.obj)
	for i, r := range rows {
		for v, c := range r.coef {
			A.Set(i, v, c)
		}
		if r.rel == le {
			A.Set(i, slack, 1)
			slack++
		}
		b[i] = r.rhs
	}

	c := make([]float64, n)
	for i, o := range p.obj {
		c[i] = -o
	}

	opt, x, err := lp.Simplex(c, A, b, 1e-10, nil)
	if err != nil {
		return 0, nil, err
	}
	return -opt, x[:len(p.obj)], nil
}

func (p *problem) String() string {
	var sb strings.Builder
	sb.WriteString("max ")
	for i, o := range p.obj {
		if i > 0 {
			sb.WriteString(" + ")
		}
		fmt.Fprintf(&sb, "%g %s", o, p.names[i])
	}
	sb.WriteString("\n")
	for _, r := range p.rows {
		first := true
		for v := range p.names {
			c, ok := r.coef[v]
			if !ok {
				continue
			}
			if !first {
				sb.WriteString(" + ")
			}
			first = false
			fmt.Fprintf(&sb, "%g %s", c, p.names[v])
		}
		if r.rel == eq {
			sb.WriteString(" = ")
		} else {
			sb.WriteString(" <= ")
		}
		fmt.Fprintf(&sb, "%g\n", r.rhs)
	}
	return sb.String()
}
