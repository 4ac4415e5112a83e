package dice

import "go.uber.org/zap"

// Roller rolls dice and logs every roll at debug level.
type Roller struct {
	src    Source
	logger *zap.Logger
}

// NewRoller creates a Roller.
//
// Precondition: src and logger must be non-nil.
func NewRoller(src Source, logger *zap.Logger) *Roller {
	return &Roller{src: src, logger: logger}
}

// Die rolls a single die with the given number of sides.
//
// Precondition: sides >= 2.
// Postcondition: Returns a value in [1, sides].
func (r *Roller) Die(sides int) int {
	v := r.src.Intn(sides) + 1
	r.logger.Debug("dice roll", zap.Int("sides", sides), zap.Int("value", v))
	return v
}

// RollExpr parses and rolls expr.
func (r *Roller) RollExpr(expr string) (Result, error) {
	e, err := Parse(expr)
	if err != nil {
		return Result{}, err
	}
	res := Roll(e, r.src)
	r.logger.Debug("dice roll",
		zap.String("expression", res.Expression),
		zap.Ints("dice", res.Dice),
		zap.Int("modifier", res.Modifier),
		zap.Int("total", res.Total),
	)
	return res, nil
}
