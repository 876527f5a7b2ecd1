package uni

// EquivClass clusters resource_resv ids that will have an identical
// placement outcome: same effective select, place, queue, and
// user/group/project plus the resources drawn from the equivalence-classing
// definition set (spec §4.H). When any member is marked can_not_run for a
// class-wide reason, the rest inherit the result without retrying
// placement.
type EquivClass struct {
	Key     string // a canonical fingerprint of the classing attributes
	Members []string
}
