package models

// NodeView показывает узел дерева наружу.
type NodeView struct {
	Username     string `json:"username"`
	ReferralCode string `json:"referral_code"`
}

// SelfView содержит данные пользователя о самом себе.
type SelfView struct {
	Username         string   `json:"username"`
	ReferralCode     string   `json:"referral_code"`
	DirectEarnings   float64  `json:"direct_earnings"`
	IndirectEarnings float64  `json:"indirect_earnings"`
	ReferredBy       *string  `json:"referred_by"`
	Referrals        []string `json:"referrals"`
}

// ParentView — родитель пользователя и, если есть, его собственный родитель.
type ParentView struct {
	Parent      NodeView  `json:"parent"`
	Grandparent *NodeView `json:"grandparent"`
}

// ChildrenView — прямые рефералы пользователя и рефералы второго уровня.
type ChildrenView struct {
	Children      []NodeView `json:"children"`
	Grandchildren []NodeView `json:"grandchildren"`
}
