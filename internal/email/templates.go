package email

import "fmt"

func verificationBodies(link string) (html, text string) {
	html = fmt.Sprintf(`<!DOCTYPE html>
<html>
  <body style="font-family: sans-serif; color: #222;">
    <h2>Bienvenido a HomeSentry</h2>
    <p>Para activar tu cuenta, confirmá tu email haciendo clic en el botón:</p>
    <p>
      <a href="%s" style="display:inline-block;padding:10px 20px;background:#1a73e8;color:#fff;text-decoration:none;border-radius:4px;">
        Confirmar email
      </a>
    </p>
    <p>Si el botón no funciona, copiá este link en tu navegador:</p>
    <p><a href="%s">%s</a></p>
    <p style="color:#888;font-size:12px;">Si no creaste esta cuenta, ignorá este mail.</p>
  </body>
</html>`, link, link, link)

	text = fmt.Sprintf("Bienvenido a HomeSentry.\n\nConfirmá tu email abriendo este link:\n%s\n\nSi no creaste esta cuenta, ignorá este mail.\n", link)
	return html, text
}
