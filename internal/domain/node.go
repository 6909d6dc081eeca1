package domain

import "fmt"

// maxNodeIDLen bounds node identifiers so they stay usable as index nodes'
// process names and database keys.
const maxNodeIDLen = 63

// NodeID is a validated worker node identifier.
type NodeID string

// InvalidNodeIDError reports a node token that failed syntactic validation.
// The offending token is carried so callers can echo it back.
type InvalidNodeIDError struct {
	Token string
}

func (e InvalidNodeIDError) Error() string {
	return fmt.Sprintf("illegal node id `%s`", e.Token)
}

// NewNodeID validates a raw node token. Valid tokens are non-empty, at most 63
// characters and limited to letters, digits, '-' and '_'.
func NewNodeID(token string) (NodeID, error) {
	if token == "" || len(token) > maxNodeIDLen {
		return "", InvalidNodeIDError{Token: token}
	}
	for _, c := range token {
		switch {
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
		case c == '-' || c == '_':
		default:
			return "", InvalidNodeIDError{Token: token}
		}
	}
	return NodeID(token), nil
}

func (n NodeID) String() string {
	return string(n)
}
