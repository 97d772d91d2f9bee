package constants

// ProfileName selects which field-extraction variant applies to a user.
type ProfileName string

// Stable values (store these exact strings in the users table).
const (
	ProfileBasic         ProfileName = "basic"
	ProfileGroceryEBT    ProfileName = "grocery_ebt"
	ProfileRestaurantTip ProfileName = "restaurant_tip"
)

func (p ProfileName) String() string {
	return string(p)
}

// DefaultTier is assigned when a user record carries no tier.
const DefaultTier = "basic"
