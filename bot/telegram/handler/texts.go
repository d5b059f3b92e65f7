package handler

import (
	"fmt"
	"strings"
)

var mdV2Replacer = strings.NewReplacer(
	"_", "\\_", "*", "\\*", "[", "\\[", "]", "\\]", "(",
	"\\(", ")", "\\)", "~", "\\~", "`", "\\`", ">", "\\>",
	"#", "\\#", "+", "\\+", "-", "\\-", "=", "\\=", "|",
	"\\|", "{", "\\{", "}", "\\}", ".", "\\.", "!", "\\!",
)

// Inside (...) of a MarkdownV2 link only ")" and "\" need escaping.
var mdV2URLReplacer = strings.NewReplacer("\\", "\\\\", ")", "\\)")

var (
	aboutText = `*MuzmoBot\-Go*
Версия: %s
Исходный код: https://github\.com/liuran001/MuzmoBot\-Go

	\[Сборка\] %s
	\[Дата сборки\] %s
	\[Окружение\] %s
%s`
	helpText = "Отправьте название песни или имя исполнителя, и я найду её на [muzmo](%s)\\.\n\n" +
		"Команды:\n" +
		"`/start` \\- начать\n" +
		"`/help` \\- эта справка\n" +
		"`/status` \\- статистика\n" +
		"`/about` \\- о боте"
	greetingText        = "Привет, %s\\!"
	enterQuery          = "Введите название песни или исполнителя:"
	queryTooShort       = "Запрос слишком короткий, нужно хотя бы %d символа\\."
	searching           = "Ищу\\.\\.\\."
	resultsHeader       = "Результаты поиска на [muzmo](%s):"
	nothingFound        = "Ничего не найдено\\. Попробуйте [поиск на сайте](%s)\\."
	searchFailed        = "Поиск не удался, попробуйте позже\\."
	sessionExpired      = "Результаты поиска устарели, отправьте запрос заново\\."
	fileOversize        = "Файл «%s» весит %s МБ, а лимит %s МБ\\."
	linkUnavailable     = "Ссылка сейчас недоступна"
	linkUnavailableText = "Ссылка на «%s» сейчас недоступна\\. Нажмите кнопку, чтобы попробовать ещё раз\\."
	transferFailed      = "Не удалось отправить файл, попробуйте ещё раз\\."
	retryButton         = "Повторить"
	preparing           = "Готовлю файл\\.\\.\\."
	busyText            = "Подождите, предыдущий файл ещё загружается"
	callbackText        = "Загружаю"
	noLastSong          = "пока нет"
	statusInfo          = `*\[Статистика\]*
Всего песен в кеше: %d
В чате \[%s\]: %d
От пользователя \[[%d](tg://user?id=%d)\]: %d
Отправлено файлов: %d
Последняя песня: %s
`
)

func greeting(firstName string) string {
	name := strings.TrimSpace(firstName)
	if name == "" {
		name = "друг"
	}
	return fmt.Sprintf(greetingText, mdV2Replacer.Replace(name))
}

func queryTooShortText(min int) string {
	return fmt.Sprintf(queryTooShort, min)
}

func link(text, url string) string {
	return fmt.Sprintf("[%s](%s)", mdV2Replacer.Replace(text), mdV2URLReplacer.Replace(url))
}

func resultsHeaderText(siteURL string) string {
	return fmt.Sprintf(resultsHeader, mdV2URLReplacer.Replace(siteURL))
}

func nothingFoundText(searchURL string) string {
	return fmt.Sprintf(nothingFound, mdV2URLReplacer.Replace(searchURL))
}

func helpTextFor(siteURL string) string {
	return fmt.Sprintf(helpText, mdV2URLReplacer.Replace(siteURL))
}

func oversizeText(label string, sizeMB, limitMB float64) string {
	return fmt.Sprintf(fileOversize, mdV2Replacer.Replace(label), megabytes(sizeMB), megabytes(limitMB))
}

func megabytes(v float64) string {
	return mdV2Replacer.Replace(fmt.Sprintf("%.2f", v))
}

func linkUnavailableFor(label string) string {
	return fmt.Sprintf(linkUnavailableText, mdV2Replacer.Replace(label))
}
