package muzmo

import (
	"fmt"
	"strings"
)

// resultsPage renders a results page with matching entries followed by
// decoys that must be skipped.
func resultsPage(page int, names []string) string {
	var b strings.Builder
	b.WriteString(`<html><head><title>muzmo</title></head><body><div class="list">`)
	for i, name := range names {
		fmt.Fprintf(&b, `<a class="block" href="/info?id=%d%02d">
			%s (03:%02d, 320 kbps)
		</a>`, page+1, i, name, 10+i)
	}
	// quick-get family is rejected
	fmt.Fprintf(&b, `<a class="block" href="/get_new?id=%d99">Decoy - Quick (02:00, 128 kbps)</a>`, page+1)
	// advertising block without a duration
	b.WriteString(`<a class="block" href="/info?id=ad">Реклама - скачать бесплатно</a>`)
	b.WriteString(`</div></body></html>`)
	return b.String()
}

func infoPage(withLink bool) string {
	if !withLink {
		return `<html><body><div class="mzmlght">Подождите...</div><a class="block" href="/info?id=1">back</a></body></html>`
	}
	return `<html><body>
		<a class="block" href="/search?q=x">Назад</a>
		<a class="block" href="/get/music/20240101/Igor_Talkov_-_Ya_vernus_79702189.mp3">Скачать</a>
	</body></html>`
}

var scenarioNames = []string{
	"Игорь Тальков - Я вернусь",
	"Игорь Тальков - Чистые пруды",
	"Игорь Тальков - Летний дождь",
	"Игорь Тальков - Россия",
	"Игорь Тальков я вернусь - концерт",
	"Игорь Тальков - Господин президент",
	"Игорь Тальков - Глобус",
	"Игорь Тальков - Память",
}
