package domain

// AccountType classifies the holder of an account.
type AccountType string

const (
	AccountIndividual AccountType = "individual"
	AccountBusiness   AccountType = "business"
	AccountOther      AccountType = "other"
)

// Account is a node in the transaction graph. Identity is immutable;
// the derived fields are recomputed by the graph whenever its edge set
// changes and are advisory, not authoritative.
type Account struct {
	ID    string      `json:"id"`
	Owner string      `json:"owner,omitempty"`
	Type  AccountType `json:"accountType"`

	// Derived attributes, populated by the graph.
	InDegree          int     `json:"inDegree"`
	OutDegree         int     `json:"outDegree"`
	CumulativeBalance float64 `json:"cumulativeBalance"`
}
