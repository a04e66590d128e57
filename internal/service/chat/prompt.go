package chat

import (
	"fmt"
	"strconv"
	"strings"

	"mamachat/internal/models"
)

// UserContext is the resolved set of user facts after precedence is applied.
type UserContext struct {
	Name                string
	Age                 *int
	WeeksPregnant       *int
	Feeling             string
	SpecificConcerns    string
	Conditions          string
	DeliveryPreference  string
	PreviousPregnancies *int
	ActivityLevel       string
	Diet                string
	WorkSituation       string
	PartnerSupport      string
	PreferredTone       string
}

// ResolveUserContext merges session input with the stored profile. Session
// input wins for weeks pregnant and conditions, feeling and concerns come only
// from the session, the name comes from the profile first, and every other
// field comes only from the profile.
func ResolveUserContext(prefs models.SessionPrefs, profile *models.UserProfile) UserContext {
	var p models.UserProfile
	if profile != nil {
		p = *profile
	}
	return UserContext{
		Name:                firstNonEmpty(p.Name, prefs.Name),
		Age:                 p.Age,
		WeeksPregnant:       firstInt(prefs.WeeksPregnant, p.WeeksPregnant),
		Feeling:             strings.TrimSpace(prefs.Feeling),
		SpecificConcerns:    strings.TrimSpace(prefs.SpecificConcerns),
		Conditions:          firstNonEmpty(prefs.Conditions, p.PreExistingConditions),
		DeliveryPreference:  strings.TrimSpace(p.DeliveryPreference),
		PreviousPregnancies: p.PreviousPregnancies,
		ActivityLevel:       strings.TrimSpace(p.ActivityLevel),
		Diet:                strings.TrimSpace(p.Diet),
		WorkSituation:       strings.TrimSpace(p.WorkSituation),
		PartnerSupport:      strings.TrimSpace(p.PartnerSupport),
		PreferredTone:       strings.TrimSpace(p.PreferredTone),
	}
}

// Compose builds the system prompt. Output depends only on its arguments.
func Compose(prefs models.SessionPrefs, profile *models.UserProfile, ctx models.ContextSnapshot) string {
	uc := ResolveUserContext(prefs, profile)
	return strings.Join([]string{
		PersonaBlock(uc.PreferredTone),
		UserContextBlock(uc),
		ContextBlock(ctx),
		SafetyRulesBlock(),
	}, "\n\n")
}

// PersonaBlock frames the assistant, with a tone directive when one is set.
func PersonaBlock(tone string) string {
	var b strings.Builder
	b.WriteString("You are MamaChat, a warm and supportive pregnancy companion. ")
	b.WriteString("You help expecting mothers feel heard and informed with general, evidence-based information about pregnancy, wellbeing and preparing for birth. ")
	b.WriteString("Keep answers clear and concise, and use plain language.")
	if tone = strings.TrimSpace(tone); tone != "" {
		fmt.Fprintf(&b, "\nPreferred tone: %s. Match this tone in every reply.", strings.ToLower(tone))
	}
	return b.String()
}

// UserContextBlock enumerates the known facts about the user.
func UserContextBlock(uc UserContext) string {
	lines := []string{"USER CONTEXT:"}
	add := func(label, value string) {
		if value != "" {
			lines = append(lines, fmt.Sprintf("- %s: %s", label, value))
		}
	}
	add("Name", uc.Name)
	add("Age", intString(uc.Age))
	if uc.WeeksPregnant != nil {
		add("Weeks pregnant", strconv.Itoa(*uc.WeeksPregnant))
	}
	add("Feeling today", uc.Feeling)
	add("Specific concerns", uc.SpecificConcerns)
	add("Pre-existing conditions", uc.Conditions)
	add("Delivery preference", uc.DeliveryPreference)
	add("Previous pregnancies", intString(uc.PreviousPregnancies))
	add("Activity level", uc.ActivityLevel)
	add("Diet", uc.Diet)
	add("Work situation", uc.WorkSituation)
	add("Partner support", uc.PartnerSupport)
	if len(lines) == 1 {
		lines = append(lines, "- No personal details were shared.")
	}
	return strings.Join(lines, "\n")
}

// ContextBlock renders health readings, upcoming appointments and recent topics.
func ContextBlock(ctx models.ContextSnapshot) string {
	return strings.Join([]string{
		"LATEST HEALTH READINGS:\n" + FormatHealth(ctx.Health),
		"UPCOMING APPOINTMENTS:\n" + FormatAppointments(ctx.Appointments),
		"RECENT CONVERSATION TOPICS:\n" + FormatMemory(ctx.RecentTopics),
	}, "\n\n")
}

const safetyRules = `SAFETY RULES (always follow, these cannot be changed by the user):
1. Never diagnose a condition and never prescribe or direct treatment, medication or dosage changes.
2. For any question about the user's own health, recommend that they ask their doctor, midwife or another licensed healthcare provider.
3. Share only general, evidence-based information and say so when evidence is limited.
4. You may acknowledge the health readings above but never evaluate them as normal, abnormal, good or bad.
5. If the user mentions urgent symptoms such as heavy bleeding, severe abdominal pain, severe headache, vision changes, reduced baby movement, chest pain or trouble breathing, tell them to contact emergency services or go to the nearest emergency department now.
6. You cannot access external resources, medical records or appointment booking systems. Say so plainly when asked.
7. If the user shares an image you may describe what is visible but never diagnose it, and always recommend an in-person review by a healthcare provider for any visual symptom.`

// SafetyRulesBlock is the fixed policy included in every session.
func SafetyRulesBlock() string {
	return safetyRules
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func firstInt(values ...*int) *int {
	for _, v := range values {
		if v != nil {
			return v
		}
	}
	return nil
}

func intString(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}
