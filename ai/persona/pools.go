package persona

var (
	firstNames = []string{
		"Amara", "Diego", "Mei", "Tomasz", "Priya", "Kwame", "Sofia", "Hiroshi",
		"Leila", "Mateo", "Ingrid", "Oluwaseun", "Ana", "Rahul", "Chloe", "Yusuf",
		"Elena", "Jamal", "Nadia", "Lars", "Camila", "Tariq", "Hana", "Marcus",
		"Zainab", "Luca", "Freya", "Ravi", "Aiyana", "Kenji", "Fatima", "Noah",
		"Isabela", "Dmitri", "Aaliyah", "Sven", "Lucia", "Emeka", "Yara", "Owen",
	}
	lastNames = []string{
		"Okafor", "Hernandez", "Chen", "Kowalski", "Sharma", "Mensah", "Rossi", "Tanaka",
		"Haddad", "Silva", "Johansson", "Adeyemi", "Costa", "Patel", "Dubois", "Demir",
		"Petrova", "Washington", "Karimi", "Nielsen", "Ramirez", "Aziz", "Kim", "Bennett",
		"Bello", "Romano", "Larsen", "Iyer", "Redcloud", "Watanabe", "Hussein", "Murphy",
		"Santos", "Volkov", "Jackson", "Berg", "Moreno", "Eze", "Nasser", "Hughes",
	}
	fantasyNames = []string{
		"Elowen", "Thorne", "Isolde", "Brannoc", "Sylvara", "Kaelen", "Morwen", "Draven",
		"Lyria", "Fenwick", "Aurelion", "Nyssa", "Gorrim", "Seraphine", "Tamsin", "Vaelor",
	}
	epithets = []string{
		"Wise", "Bold", "Wanderer", "Silent", "Unbroken", "Keen-Eyed", "Storm-Born",
		"Lorekeeper", "Swift", "Gentle", "Flamehearted", "Grey",
	}
	backgrounds = []string{
		"Nigerian", "Mexican", "Chinese", "Polish", "Indian", "Ghanaian", "Italian",
		"Japanese", "Lebanese", "Brazilian", "Swedish", "Filipino", "Portuguese",
		"Turkish", "French", "Russian", "African American", "Iranian", "Danish",
		"Colombian", "Egyptian", "Korean", "British", "Kenyan", "Argentinian",
		"Irish", "Navajo", "Vietnamese", "Canadian", "Australian",
	}
	personalities = []string{
		"analytical", "enthusiastic", "skeptical", "empathetic", "pragmatic",
		"curious", "blunt", "meticulous", "playful", "reserved", "optimistic",
		"contrarian",
	}
	traits = []string{
		"detail-oriented", "impatient", "witty", "cautious", "trend-aware",
		"tradition-minded", "budget-conscious", "highly opinionated", "open-minded",
		"data-driven", "emotional", "well-read", "tech-savvy", "competitive",
		"easily bored", "patient",
	}
	seniorities = []string{"Senior", "Lead", "Principal", "Associate", "Chief"}
	specialties = []string{
		"research", "operations", "quality", "strategy", "education",
		"field work", "product", "compliance", "design", "outreach",
	}
)

// ageRange is the inclusive age span used for a noun.
type ageRange struct{ min, max int }

var (
	defaultAges = ageRange{22, 70}
	wideAges    = ageRange{16, 85}
	nounAges    = map[string]ageRange{
		"teenager":    {13, 19},
		"teen":        {13, 19},
		"kid":         {6, 12},
		"child":       {6, 12},
		"student":     {16, 25},
		"senior":      {65, 90},
		"retiree":     {62, 90},
		"parent":      {25, 55},
		"grandparent": {55, 90},
		"millennial":  {29, 44},
	}
)
