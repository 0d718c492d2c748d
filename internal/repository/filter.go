package repository

// Operator is the comparison of one filter item.
type Operator string

const (
	Equal          Operator = "eq"
	NotEqual       Operator = "neq"
	Less           Operator = "lt"
	Greater        Operator = "gt"
	LessOrEqual    Operator = "lte"
	GreaterOrEqual Operator = "gte"
	InList         Operator = "in"
	NotInList      Operator = "nin"
	Contains       Operator = "contains"  // LIKE %value%
	NotContains    Operator = "ncontains" // NOT LIKE %value%
	IsNull         Operator = "null"
	IsNotNull      Operator = "not_null"
)

// FilterItem is one condition on a mapped column.
type FilterItem struct {
	Field    string   `json:"field" validate:"required"`
	Operator Operator `json:"operator" validate:"required,oneof=eq neq lt gt lte gte in nin contains ncontains null not_null"`
	Value    any      `json:"value"`
}
