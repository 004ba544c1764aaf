package agent

// route decides which node runs after current. All retry policy lives
// here: a failed validation or execution loops back to generation until
// the failing stage's own counter reaches maxErrors, then the run
// explains the failure.
func (g *Graph) route(current Node, s *State) Node {
	switch current {
	case NodeClassifyIntent:
		if s.Intent == IntentGeneral {
			return NodeRespondGeneral
		}
		return NodeClassifyDatabase

	case NodeClassifyDatabase:
		return NodeGenerateSQL

	case NodeGenerateSQL:
		return NodeValidateSQL

	case NodeValidateSQL:
		if s.Valid {
			return NodeExecuteSQL
		}
		if s.ValidationErrors >= g.maxErrors {
			return NodeRespondFailure
		}
		return NodeGenerateSQL

	case NodeExecuteSQL:
		if s.Executed {
			return NodeSynthesize
		}
		if s.ExecutionErrors >= g.maxErrors {
			return NodeRespondFailure
		}
		return NodeGenerateSQL

	case NodeSynthesize, NodeRespondGeneral, NodeRespondFailure:
		return NodeEnd

	default:
		return NodeEnd
	}
}
