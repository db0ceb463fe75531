package notify

import (
	"fmt"
	"math/rand/v2"
)

// SnarkyReminders are appended to overdue-turn reminders.
var SnarkyReminders = []string{
	"Hey, remember that Civ game you're in? It remembers you. It's been waiting. Patiently. Unlike me.",
	"Just checking if you're still alive, because your turn certainly isn't progressing.",
	"Fun fact: entire civilizations have risen and fallen in the time you've been 'thinking' about your turn.",
	"I'm not saying you're slow, but I've seen glaciers move faster. Take your turn.",
	"Your opponents have started a betting pool on whether you'll ever finish your turn. The odds aren't great.",
	"Legend has it, if you wait long enough, the turn will play itself. Spoiler: it won't. Take your turn.",
	"I've sent this reminder before. I'll send it again. I have nothing but time. You, apparently, have nothing but excuses.",
	"The other players wanted me to tell you to hurry up. I wanted to tell you that too, but more sarcastically.",
	"Your Civ is starting to think you've abandoned them. Don't make me send a wellness check.",
	"Breaking news: Local player discovers 'taking your turn' is actually an option. More at 11.",
	"Did you know your turn has been pending longer than some people's entire relationships? Take. Your. Turn.",
	"I'm starting to think you're not playing hard to get, you're just not playing at all.",
	"The game isn't going to play itself. Well, technically it could if you enabled AI, but that's not the point.",
	"Tick tock. That's not a clock, that's the sound of everyone's patience running out.",
	"Your turn has been waiting so long it's started collecting dust. Digital dust. That's how long.",
}

// Admonishments are appended when the player has no known chat identity,
// usually because they renamed their Steam account.
var Admonishments = []string{
	"Whoever you are, change your Steam name back. We're not playing guess who here.",
	"Someone changed their Steam name and now I look like an idiot. Thanks for that.",
	"I don't know who you are, but I will find you, and I will ping you. Change your name back.",
	"Congratulations on your new identity. Now change it back so I can do my job.",
	"This is why we can't have nice things. Change your Steam name back.",
	"I'm a simple bot with simple needs. Please don't make my life harder than it needs to be.",
	"Your new Steam name is very cool. I'm sure it was worth confusing everyone. Change it back.",
	"I'm not mad, I'm just disappointed. And also mad. Change your name back.",
	"Did you think I wouldn't notice? I notice everything. Except your new name, apparently.",
	"Plot twist: someone changed their Steam name. Change it back or face mild inconvenience.",
}

// Pick returns a random line from pool, or "" for an empty pool.
func Pick(pool []string) string {
	if len(pool) == 0 {
		return ""
	}
	return pool[rand.IntN(len(pool))]
}

// Turn describes a new turn to announce.
type Turn struct {
	Game   string
	Player string
	ChatID string
	Round  string
	Civ    string
	Leader string
}

// TurnMessage formats a turn announcement. The admonishment is only used
// when the player has no chat identity.
func TurnMessage(a Addresser, t Turn, admonishment string) string {
	if t.ChatID != "" {
		return fmt.Sprintf("%s - Your turn in \"%s\" (Round %s) as %s of %s",
			a.Mention(t.ChatID), t.Game, t.Round, t.Leader, t.Civ)
	}
	return fmt.Sprintf("%s - It's \"%s\"'s turn in \"%s\" (Round %s) as %s of %s\n\n%s",
		a.Everyone(), t.Player, t.Game, t.Round, t.Leader, t.Civ, admonishment)
}

// Reminder describes an overdue turn.
type Reminder struct {
	Game         string
	Player       string
	ChatID       string
	Round        string
	Number       int // 1-based reminder count including this one
	HoursWaiting float64
}

// ReminderMessage formats an overdue-turn reminder.
func ReminderMessage(a Addresser, r Reminder, snark string) string {
	if r.ChatID != "" {
		return fmt.Sprintf("⏰ %s - Reminder #%d: Your turn in \"%s\" (Round %s) has been waiting for %.1f hours.\n\n%s",
			a.Mention(r.ChatID), r.Number, r.Game, r.Round, r.HoursWaiting, snark)
	}
	return fmt.Sprintf("⏰ %s - Reminder #%d: **%s**'s turn in \"%s\" (Round %s) has been waiting for %.1f hours.\n\n%s",
		a.Everyone(), r.Number, r.Player, r.Game, r.Round, r.HoursWaiting, snark)
}
