package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Константы валидации
const (
	MinNameLength        = 2
	MaxNameLength        = 100
	MinCompanyLength     = 2
	MaxCompanyLength     = 100
	MinRoleLength        = 2
	MaxRoleLength        = 150
	MaxDescriptionLength = 5000
	MaxSkillLength       = 50
	MaxSkillsCount       = 50
	MaxCompaniesCount    = 20
	MinMessageLength     = 1
	MaxMessageLength     = 5000
	MinRewardAmount      = 1.0
	MaxRewardAmount      = 10000000.0 // 10 миллионов
)

// ValidateLength проверяет длину строки.
func ValidateLength(fieldName, value string, min, max int) error {
	length := utf8.RuneCountInString(value)
	if min > 0 && length < min {
		return fmt.Errorf("%s должен быть не менее %d символов", fieldName, min)
	}
	if max > 0 && length > max {
		return fmt.Errorf("%s должен быть не более %d символов", fieldName, max)
	}
	return nil
}

// ValidateEmail проверяет формат email.
func ValidateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("email обязателен")
	}

	email = strings.TrimSpace(email)
	email = strings.ToLower(email)

	if !strings.Contains(email, "@") {
		return fmt.Errorf("email должен содержать символ @")
	}

	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return fmt.Errorf("некорректный формат email")
	}

	localPart := parts[0]
	domainPart := parts[1]

	if len(localPart) == 0 || len(localPart) > 64 {
		return fmt.Errorf("локальная часть email должна быть от 1 до 64 символов")
	}

	if len(domainPart) == 0 || len(domainPart) > 255 {
		return fmt.Errorf("доменная часть email должна быть от 1 до 255 символов")
	}

	if !strings.Contains(domainPart, ".") {
		return fmt.Errorf("доменная часть email должна содержать точку")
	}

	emailRegex := regexp.MustCompile(`^[a-z0-9._+-]+$`)
	if !emailRegex.MatchString(localPart) {
		return fmt.Errorf("локальная часть email содержит недопустимые символы")
	}

	domainRegex := regexp.MustCompile(`^[a-z0-9.-]+\.[a-z]{2,}$`)
	if !domainRegex.MatchString(domainPart) {
		return fmt.Errorf("доменная часть email имеет некорректный формат")
	}

	return nil
}

// ValidateNonEmpty проверяет, что строка не пустая.
func ValidateNonEmpty(fieldName, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%s не может быть пустым", fieldName)
	}
	return nil
}

// ValidateName проверяет имя пользователя.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("имя обязательно")
	}

	name = strings.TrimSpace(name)

	if err := ValidateLength("имя", name, MinNameLength, MaxNameLength); err != nil {
		return err
	}

	nameRegex := regexp.MustCompile(`^[a-zA-Zа-яА-ЯёЁ0-9\s\-_.']+$`)
	if !nameRegex.MatchString(name) {
		return fmt.Errorf("имя содержит недопустимые символы")
	}

	return nil
}

// ValidateCompany проверяет название компании.
func ValidateCompany(company string) error {
	if strings.TrimSpace(company) == "" {
		return fmt.Errorf("компания обязательна")
	}

	return ValidateLength("название компании", strings.TrimSpace(company), MinCompanyLength, MaxCompanyLength)
}

// ValidateCompanies проверяет список компаний реферера.
func ValidateCompanies(companies []string) error {
	if len(companies) > MaxCompaniesCount {
		return fmt.Errorf("количество компаний не может превышать %d", MaxCompaniesCount)
	}

	seen := make(map[string]bool)
	for _, company := range companies {
		if err := ValidateCompany(company); err != nil {
			return err
		}
		key := strings.ToLower(strings.TrimSpace(company))
		if seen[key] {
			return fmt.Errorf("компания '%s' указана дважды", company)
		}
		seen[key] = true
	}

	return nil
}

// ValidateRoleTitle проверяет название должности в запросе.
func ValidateRoleTitle(role string) error {
	if strings.TrimSpace(role) == "" {
		return fmt.Errorf("должность обязательна")
	}

	return ValidateLength("должность", strings.TrimSpace(role), MinRoleLength, MaxRoleLength)
}

// ValidateDescription проверяет описание запроса.
func ValidateDescription(description string) error {
	if description == "" {
		return nil
	}

	return ValidateLength("описание", strings.TrimSpace(description), 0, MaxDescriptionLength)
}

// ValidateSkills проверяет массив навыков.
func ValidateSkills(skills []string) error {
	if len(skills) > MaxSkillsCount {
		return fmt.Errorf("количество навыков не может превышать %d", MaxSkillsCount)
	}

	seen := make(map[string]bool)
	for _, skill := range skills {
		skill = strings.TrimSpace(skill)
		if skill == "" {
			return fmt.Errorf("навык не может быть пустым")
		}

		if utf8.RuneCountInString(skill) > MaxSkillLength {
			return fmt.Errorf("навык не может быть длиннее %d символов", MaxSkillLength)
		}

		skillLower := strings.ToLower(skill)
		if seen[skillLower] {
			return fmt.Errorf("навык '%s' указан дважды", skill)
		}
		seen[skillLower] = true
	}

	return nil
}

// ValidateRewardAmount проверяет сумму вознаграждения.
func ValidateRewardAmount(amount float64) error {
	if amount < MinRewardAmount {
		return fmt.Errorf("вознаграждение должно быть не менее %.0f", MinRewardAmount)
	}
	if amount > MaxRewardAmount {
		return fmt.Errorf("вознаграждение не может превышать %.0f", MaxRewardAmount)
	}
	return nil
}

// ValidateMessageContent проверяет содержимое сообщения.
func ValidateMessageContent(content string) error {
	if content == "" {
		return fmt.Errorf("сообщение не может быть пустым")
	}

	content = strings.TrimSpace(content)

	return ValidateLength("сообщение", content, MinMessageLength, MaxMessageLength)
}
