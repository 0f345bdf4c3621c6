package model

// Milestone описывает порог длины стрика и награду за его достижение.
type Milestone struct {
	Days       int    `json:"days"`
	Name       string `json:"name"`
	Emblem     string `json:"emblem"`
	TokenGrant int    `json:"token_grant"`
}

// milestoneTable упорядочена по возрастанию Days.
var milestoneTable = [...]Milestone{
	{Days: 3, Name: "Getting Started", Emblem: "🔥", TokenGrant: 10},
	{Days: 7, Name: "Week Warrior", Emblem: "⚡", TokenGrant: 25},
	{Days: 14, Name: "Fortnight Fighter", Emblem: "💪", TokenGrant: 50},
	{Days: 30, Name: "Monthly Master", Emblem: "🏆", TokenGrant: 100},
	{Days: 60, Name: "Unstoppable", Emblem: "💎", TokenGrant: 200},
	{Days: 100, Name: "Centurion", Emblem: "👑", TokenGrant: 500},
	{Days: 365, Name: "Legend", Emblem: "🌟", TokenGrant: 1000},
}

// Milestones возвращает копию таблицы вех в порядке возрастания.
func Milestones() []Milestone {
	res := make([]Milestone, len(milestoneTable))
	copy(res, milestoneTable[:])
	return res
}

