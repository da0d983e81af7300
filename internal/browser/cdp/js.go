package cdp

import (
	"encoding/json"
	"fmt"
)

// Every element script receives the element resolved from (selector, index)
// as `el` and returns null when it no longer exists.
const elementPrelude = `const el = document.querySelectorAll(%s)[%d]; if (!el) return null;`

const jsCount = `(function(selector) {
	return document.querySelectorAll(selector).length;
})(%s)`

const jsVisible = `
	const rect = el.getBoundingClientRect();
	const style = window.getComputedStyle(el);
	return rect.width > 0 && rect.height > 0 &&
		style.display !== 'none' && style.visibility !== 'hidden' && style.opacity !== '0';`

const jsText = `
	const tag = el.tagName;
	if (tag === 'TEXTAREA' || tag === 'INPUT') return el.value || '';
	return el.textContent || '';`

// jsFill goes through the native value setter so frameworks that track the
// value property see the change, then fires the events a typing user would.
const jsFill = `
	const text = %s;
	el.focus();
	const write = (value) => {
		const tag = el.tagName;
		if (tag === 'TEXTAREA' || tag === 'INPUT') {
			const proto = tag === 'TEXTAREA' ? HTMLTextAreaElement.prototype : HTMLInputElement.prototype;
			const desc = Object.getOwnPropertyDescriptor(proto, 'value');
			if (desc && desc.set) { desc.set.call(el, value); } else { el.value = value; }
		} else if (el.isContentEditable) {
			el.textContent = value;
		} else {
			throw new Error('element <' + tag.toLowerCase() + '> is not editable');
		}
		el.dispatchEvent(new InputEvent('input', { bubbles: true, data: value }));
	};
	write('');
	write(text);
	el.dispatchEvent(new Event('change', { bubbles: true }));
	el.dispatchEvent(new KeyboardEvent('keyup', { bubbles: true }));
	return true;`

func jsonEncode(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(b)
}

func elementScript(ref nodeRef, body string) string {
	return fmt.Sprintf("(function() { "+elementPrelude+"\n%s\n})()", jsonEncode(ref.Selector), ref.Index, body)
}
